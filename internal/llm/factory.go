package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config selects and configures a provider adapter.
type Config struct {
	Kind    string // "openai" (any compatible endpoint) or "gemini"
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	Retry   RetryPolicy
}

// New builds the provider named by cfg.Kind, wrapped with retries.
func New(ctx context.Context, cfg Config, log *zap.Logger) (Provider, error) {
	var p Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "openai":
		p = NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "gemini":
		g, err := NewGemini(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		p = g
	default:
		return nil, fmt.Errorf("unsupported provider %q (supported: openai, gemini)", cfg.Kind)
	}

	policy := cfg.Retry
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy()
	}
	return WithRetry(p, policy, log), nil
}
