// Package llm defines the model-provider boundary used by the planner and the
// concrete provider adapters (OpenAI-compatible chat completions and Gemini).
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion request. Zero values mean "provider default".
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a completion request.
type Response struct {
	Content      string
	FinishReason string
	Usage        *Usage // nil when the provider does not report usage
}

// Provider produces a completion for an ordered message list.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// Temperature returns a pointer suitable for Options.Temperature.
func Temperature(t float64) *float64 {
	return &t
}
