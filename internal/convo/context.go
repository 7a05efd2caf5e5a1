// Package convo keeps the message history sent to the model and a cache of
// step outputs, bounded by a token budget.
package convo

import (
	"sync"
	"unicode/utf8"

	"github.com/apercallc/ai-terminal/internal/environment"
	"github.com/apercallc/ai-terminal/internal/llm"
)

const (
	// MaxOutputChars is the length above which recorded outputs are truncated.
	MaxOutputChars = 2000
	// TokenBudget is the estimated token ceiling enforced by pruning.
	TokenBudget = 12000
	// TruncationMarker separates the kept head and tail of a long output.
	TruncationMarker = "\n...[truncated]...\n"

	minKeptMessages = 2
)

// Context is the conversation state shared by the planner and executor.
// The zero value is not usable; call New.
type Context struct {
	mu       sync.Mutex
	info     *environment.SystemInfo
	messages []llm.Message
	outputs  map[string]string
	budget   int
}

// Option configures a Context.
type Option func(*Context)

// WithTokenBudget overrides TokenBudget.
func WithTokenBudget(tokens int) Option {
	return func(c *Context) {
		if tokens > 0 {
			c.budget = tokens
		}
	}
}

// New returns an empty Context.
func New(opts ...Option) *Context {
	c := &Context{
		outputs: make(map[string]string),
		budget:  TokenBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSystemInfo stores host facts for the synthesized system prompt.
func (c *Context) SetSystemInfo(info environment.SystemInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = &info
	c.prune()
}

// AddUserMessage appends a user turn and prunes the window.
func (c *Context) AddUserMessage(content string) {
	c.add(llm.Message{Role: llm.RoleUser, Content: content})
}

// AddAssistantMessage appends a model reply and prunes the window.
func (c *Context) AddAssistantMessage(content string) {
	c.add(llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (c *Context) add(m llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	c.prune()
}

// prune drops the oldest messages while more than two remain and the
// estimate is over budget. Callers hold c.mu.
func (c *Context) prune() {
	for len(c.messages) > minKeptMessages && c.estimateLocked() > c.budget {
		c.messages[0] = llm.Message{}
		c.messages = c.messages[1:]
	}
}

// Messages returns a copy of the stored history, without the system prompt.
func (c *Context) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.messages...)
}

// RecordOutput caches output for stepID, truncating long outputs.
func (c *Context) RecordOutput(stepID, output string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[stepID] = Truncate(output)
}

// Output returns the cached output for stepID.
func (c *Context) Output(stepID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.outputs[stepID]
	return out, ok
}

// BuildMessages returns the system prompt, the history and, if given, one
// extra user message that is not stored.
func (c *Context) BuildMessages(extra ...string) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]llm.Message, 0, len(c.messages)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(c.info)})
	msgs = append(msgs, c.messages...)
	for _, e := range extra {
		if e != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: e})
		}
	}
	return msgs
}

// EstimateTotalTokens estimates the size of the system prompt plus history.
func (c *Context) EstimateTotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimateLocked()
}

func (c *Context) estimateLocked() int {
	total := EstimateTokens(SystemPrompt(c.info))
	for _, m := range c.messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Clear drops messages and outputs but keeps system info.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.outputs = make(map[string]string)
}

// Reset drops everything, including system info.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.outputs = make(map[string]string)
	c.info = nil
}

// EstimateTokens approximates one token per four characters.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Truncate keeps the first and last MaxOutputChars/2 characters of s, joined
// by TruncationMarker, when s is longer than MaxOutputChars.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxOutputChars {
		return s
	}
	r := []rune(s)
	half := MaxOutputChars / 2
	return string(r[:half]) + TruncationMarker + string(r[len(r)-half:])
}
