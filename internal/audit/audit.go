// Package audit records every command the agent runs as JSON lines.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Phase distinguishes the entry written before a command runs from the one
// written after it finishes.
type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseFinish Phase = "finish"
)

// Entry is one audit line. Finish entries carry the outcome fields.
type Entry struct {
	ID        string        `json:"id"`
	Phase     Phase         `json:"phase"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"sessionId,omitempty"`
	Goal      string        `json:"goal,omitempty"`
	StepID    string        `json:"stepId"`
	Command   string        `json:"command"`
	Source    string        `json:"source"`
	RiskLevel string        `json:"riskLevel"`
	Approved  bool          `json:"approved"`
	Attempt   int           `json:"attempt"`
	ExitCode  *int          `json:"exitCode,omitempty"`
	Success   *bool         `json:"success,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Logger persists audit entries.
type Logger interface {
	Write(e Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Write(Entry) error { return nil }

// DefaultPath returns $XDG_DATA_HOME/aiterm/audit.log.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "aiterm", "audit.log"), nil
}

// FileLogger appends entries to a JSONL file.
type FileLogger struct {
	path string
	mu   sync.Mutex
}

// NewFileLogger creates the parent directory of path if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	return &FileLogger{path: path}, nil
}

func (l *FileLogger) Path() string { return l.path }

func (l *FileLogger) Write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadLog returns the last limit entries of the log at path, oldest first.
// A limit <= 0 returns every entry. Lines that fail to decode are skipped.
func ReadLog(path string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // no log yet, not an error
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) > 2*limit {
			entries = append(entries[:0:0], entries[len(entries)-limit:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
