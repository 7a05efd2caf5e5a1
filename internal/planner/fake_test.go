package planner_test

import (
	"context"
	"sync"

	"github.com/apercallc/ai-terminal/internal/llm"
)

type fakeProvider struct {
	name string

	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]llm.Message
	opts      []llm.Options
}

func newFake(responses ...string) *fakeProvider {
	return &fakeProvider{name: "fake", responses: responses}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llm.Response{Content: ""}, nil
	}
	content := f.responses[0]
	f.responses = f.responses[1:]
	return &llm.Response{Content: content, FinishReason: "stop"}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
