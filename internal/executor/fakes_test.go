package executor_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/audit"
	"github.com/apercallc/ai-terminal/internal/llm"
	"github.com/apercallc/ai-terminal/internal/shell"
)

// fakeSession answers each command through respond. When reply is false the
// marker is never printed, as if the command hung.
type fakeSession struct {
	id      string
	respond func(command string) (output string, exitCode int, reply bool)
	written chan string

	mu           sync.Mutex
	subs         map[int]chan shell.Chunk
	nextSub      int
	subscribes   int
	unsubscribes int
	commands     []string
}

func newFakeSession(respond func(string) (string, int, bool)) *fakeSession {
	return &fakeSession{
		id:      "sess-1",
		respond: respond,
		written: make(chan string, 16),
		subs:    make(map[int]chan shell.Chunk),
	}
}

func echoOK(command string) (string, int, bool) {
	return "ok: " + command, 0, true
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Write(text string) error {
	lines := strings.SplitN(text, "\n", 3)
	if len(lines) < 2 {
		return errors.New("expected command and marker lines")
	}
	command := lines[0]
	token := strings.ReplaceAll(strings.TrimSuffix(strings.TrimPrefix(lines[1], `echo "`), `"$?`), `""`, "")

	f.mu.Lock()
	f.commands = append(f.commands, command)
	subs := make([]chan shell.Chunk, 0, len(f.subs))
	for _, ch := range f.subs {
		subs = append(subs, ch)
	}
	f.mu.Unlock()

	select {
	case f.written <- command:
	default:
	}

	out, code, reply := f.respond(command)
	data := out
	if reply {
		data = out + "\n" + token + strconv.Itoa(code) + "\n"
	}
	if data == "" {
		return nil
	}
	for _, ch := range subs {
		ch <- shell.Chunk{SessionID: f.id, Data: data}
	}
	return nil
}

func (f *fakeSession) Subscribe() (<-chan shell.Chunk, func()) {
	ch := make(chan shell.Chunk, 64)
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	f.subscribes++
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.unsubscribes++
			f.mu.Unlock()
		})
	}
}

func (f *fakeSession) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeSession) subscriptionCounts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.unsubscribes
}

// scriptedProvider answers plan, analysis and verification prompts.
type scriptedProvider struct {
	mu       sync.Mutex
	plan     string
	analysis string
	verify   string
	planErr  error
	analyses int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := messages[len(messages)-1].Content
	switch {
	case strings.HasPrefix(last, "Create a step-by-step plan"):
		if p.planErr != nil {
			return nil, p.planErr
		}
		return &llm.Response{Content: p.plan}, nil
	case strings.HasPrefix(last, "The command for step"):
		p.analyses++
		return &llm.Response{Content: p.analysis}, nil
	default:
		content := p.verify
		if content == "" {
			content = "no verdict"
		}
		return &llm.Response{Content: content}, nil
	}
}

func planFor(commands ...string) string {
	var steps []string
	for i, c := range commands {
		steps = append(steps, fmt.Sprintf(`{"id":"step-%d","command":%q,"description":"d","riskLevel":"low"}`, i+1, c))
	}
	return `{"plan":{"goal":"g","summary":"s","steps":[` + strings.Join(steps, ",") + `]}}`
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *memAudit) Write(e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memAudit) Entries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...)
}

// stateRecorder collects every snapshot state a machine publishes.
type stateRecorder struct {
	mu     sync.Mutex
	states []agent.State
}

func (r *stateRecorder) listen(s agent.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s.State)
}

func (r *stateRecorder) States() []agent.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]agent.State(nil), r.states...)
}
