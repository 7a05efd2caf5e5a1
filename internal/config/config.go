// Package config loads aiterm settings from the global and project YAML
// files, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFile is looked up in the current working directory.
const ProjectFile = ".aiterm.yaml"

// Provider selects and configures the model backend.
type Provider struct {
	Kind      string `yaml:"kind,omitempty"`        // "openai" | "gemini"
	BaseURL   string `yaml:"base_url,omitempty"`    // OpenAI-compatible endpoint
	Model     string `yaml:"model,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // name of the env var holding the key
	Timeout   string `yaml:"timeout,omitempty"`     // Go duration, e.g. "2m"
}

// Config holds all configurable aiterm settings.
type Config struct {
	Mode           string   `yaml:"mode,omitempty"` // "safe" | "auto"
	MaxRetries     *int     `yaml:"max_retries,omitempty"`
	CommandTimeout string   `yaml:"command_timeout,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	Shell          string   `yaml:"shell,omitempty"`     // defaults to $SHELL
	AuditLog       string   `yaml:"audit_log,omitempty"` // defaults to the XDG data dir
	ReportDir      string   `yaml:"report_dir,omitempty"`
	Provider       Provider `yaml:"provider,omitempty"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	retries := 3
	temp := 0.1
	return Config{
		Mode:           "safe",
		MaxRetries:     &retries,
		CommandTimeout: "120s",
		Temperature:    &temp,
		ReportDir:      ".",
		Provider: Provider{
			Kind:      "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   "2m",
		},
	}
}

// Dir returns ~/.config/aiterm.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "aiterm"), nil
}

// GlobalPath returns ~/.config/aiterm/config.yaml.
func GlobalPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadGlobal reads ~/.config/aiterm/config.yaml.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .aiterm.yaml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

// Load merges the global and project files and applies environment overrides.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	ApplyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// loadFile reads and parses a YAML config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer != nil {
			overlay(&result, layer)
		}
	}
	return result
}

func overlay(dst, src *Config) {
	setString(&dst.Mode, src.Mode)
	setString(&dst.CommandTimeout, src.CommandTimeout)
	setString(&dst.Shell, src.Shell)
	setString(&dst.AuditLog, src.AuditLog)
	setString(&dst.ReportDir, src.ReportDir)
	if src.MaxRetries != nil {
		v := *src.MaxRetries
		dst.MaxRetries = &v
	}
	if src.Temperature != nil {
		v := *src.Temperature
		dst.Temperature = &v
	}
	setString(&dst.Provider.Kind, src.Provider.Kind)
	setString(&dst.Provider.BaseURL, src.Provider.BaseURL)
	setString(&dst.Provider.Model, src.Provider.Model)
	setString(&dst.Provider.APIKeyEnv, src.Provider.APIKeyEnv)
	setString(&dst.Provider.Timeout, src.Provider.Timeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ApplyEnv overrides cfg from AITERM_* environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	setString(&cfg.Mode, strings.TrimSpace(getenv("AITERM_MODE")))
	setString(&cfg.Provider.Kind, strings.TrimSpace(getenv("AITERM_PROVIDER")))
	setString(&cfg.Provider.Model, strings.TrimSpace(getenv("AITERM_MODEL")))
	setString(&cfg.Provider.BaseURL, strings.TrimSpace(getenv("AITERM_BASE_URL")))
	if v := strings.TrimSpace(getenv("AITERM_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = &n
		}
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Mode {
	case "safe", "auto":
	default:
		return fmt.Errorf("mode must be safe or auto, got %q", c.Mode)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", *c.MaxRetries)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", *c.Temperature)
	}
	if _, err := parseDuration("command_timeout", c.CommandTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("provider.timeout", c.Provider.Timeout); err != nil {
		return err
	}
	switch c.Provider.Kind {
	case "openai", "gemini":
	default:
		return fmt.Errorf("provider.kind must be openai or gemini, got %q", c.Provider.Kind)
	}
	return nil
}

// CommandTimeoutDuration returns command_timeout, or 0 when unset.
func (c Config) CommandTimeoutDuration() time.Duration {
	d, _ := parseDuration("command_timeout", c.CommandTimeout)
	return d
}

// ProviderTimeout returns provider.timeout, or 0 when unset.
func (c Config) ProviderTimeout() time.Duration {
	d, _ := parseDuration("provider.timeout", c.Provider.Timeout)
	return d
}

// Retries returns max_retries or the default of 3.
func (c Config) Retries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// APIKey reads the provider key from the configured environment variable.
func (c Config) APIKey(getenv func(string) string) string {
	if c.Provider.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(getenv(c.Provider.APIKeyEnv))
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// Save writes cfg to path atomically via a temp file + os.Rename.
func Save(path string, cfg *Config) (err error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
