package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RunWizard asks for the main settings on in/out and returns the resulting
// config. If existing is non-nil, it is used as the default for each prompt.
func RunWizard(in io.Reader, out io.Writer, existing *Config) (*Config, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	cfg := Defaults()
	if existing != nil {
		overlay(&cfg, existing)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │      aiterm — configuration     │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	kind, err := ask("  Model provider (openai/gemini)", cfg.Provider.Kind)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(kind, "gemini") {
		if cfg.Provider.Kind != "gemini" {
			cfg.Provider.Model = "gemini-2.5-flash"
			cfg.Provider.APIKeyEnv = "GEMINI_API_KEY"
			cfg.Provider.BaseURL = ""
		}
		cfg.Provider.Kind = "gemini"
	} else {
		cfg.Provider.Kind = "openai"
	}

	if cfg.Provider.Model, err = ask("  Model", cfg.Provider.Model); err != nil {
		return nil, err
	}
	if cfg.Provider.Kind == "openai" {
		if cfg.Provider.BaseURL, err = ask("  API base URL (blank for api.openai.com)", cfg.Provider.BaseURL); err != nil {
			return nil, err
		}
	}
	if cfg.Provider.APIKeyEnv, err = ask("  Environment variable holding the API key", cfg.Provider.APIKeyEnv); err != nil {
		return nil, err
	}

	mode, err := ask("  Execution mode (safe/auto)", cfg.Mode)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(mode, "auto") {
		cfg.Mode = "auto"
	} else {
		cfg.Mode = "safe"
	}

	retries, err := ask("  Max retries per step", strconv.Itoa(cfg.Retries()))
	if err != nil {
		return nil, err
	}
	if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
		cfg.MaxRetries = &n
	}

	fmt.Fprintln(out)
	return &cfg, nil
}
