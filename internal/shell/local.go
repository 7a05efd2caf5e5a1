package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultShell is used when no shell is configured.
const DefaultShell = "/bin/sh"

const subscriberBuffer = 256

// Options configures StartLocal.
type Options struct {
	Shell  string   // path to a POSIX shell; DefaultShell if empty
	Dir    string   // working directory; the current one if empty
	Env    []string // extra KEY=value pairs appended to the process env
	Logger *zap.Logger
}

// LocalSession is a shell subprocess driven through pipes. stderr is merged
// into stdout once the shell starts.
type LocalSession struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	log    *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	done chan struct{}
	err  error
}

type subscriber struct {
	ch   chan Chunk
	done chan struct{}
	once sync.Once
}

// StartLocal spawns the shell. The process is killed when ctx is cancelled
// or Close is called.
func StartLocal(ctx context.Context, opts Options) (*LocalSession, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	path := opts.Shell
	if path == "" {
		path = DefaultShell
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("shell stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("shell stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("shell stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}

	s := &LocalSession{
		id:     uuid.NewString(),
		cmd:    cmd,
		stdin:  stdin,
		cancel: cancel,
		log:    log.With(zap.String("shell", path)),
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}

	var g errgroup.Group
	g.Go(func() error { return s.pump(stdout) })
	g.Go(func() error { return s.pump(stderr) })
	go func() {
		pumpErr := g.Wait()
		waitErr := cmd.Wait()
		s.finish(errors.Join(pumpErr, waitErr))
	}()

	if err := s.Write("exec 2>&1\n"); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.log.Debug("shell session started", zap.String("session", s.id), zap.Int("pid", cmd.Process.Pid))
	return s, nil
}

func (s *LocalSession) ID() string { return s.id }

func (s *LocalSession) Write(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if _, err := io.WriteString(s.stdin, text); err != nil {
		if errors.Is(err, fs.ErrClosed) || errors.Is(err, os.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("writing to shell: %w", err)
	}
	return nil
}

func (s *LocalSession) Subscribe() (<-chan Chunk, func()) {
	sub := &subscriber{
		ch:   make(chan Chunk, subscriberBuffer),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.done)
		})
	}
}

// Done is closed when the shell process has exited.
func (s *LocalSession) Done() <-chan struct{} { return s.done }

// Err returns the exit error once Done is closed.
func (s *LocalSession) Err() error {
	<-s.done
	return s.err
}

// Close kills the shell and waits for the output pumps to drain.
func (s *LocalSession) Close() error {
	_ = s.stdin.Close()
	s.cancel()
	<-s.done
	return nil
}

func (s *LocalSession) pump(r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.broadcast(Chunk{SessionID: s.id, Data: string(buf[:n])})
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *LocalSession) broadcast(c Chunk) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- c:
		case <-sub.done:
		}
	}
}

func (s *LocalSession) finish(err error) {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for sub := range subs {
		close(sub.ch)
	}
	s.err = err
	s.cancel()
	s.log.Debug("shell session exited", zap.String("session", s.id), zap.Error(err))
	close(s.done)
}
