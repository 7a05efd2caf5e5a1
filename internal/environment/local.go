package environment

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// GitRunner executes a git command and returns its output.
// This abstraction allows mocking in tests.
type GitRunner func(ctx context.Context, workDir string, args ...string) (string, error)

// Local reads SystemInfo from the current process environment.
type Local struct {
	// WorkDir overrides the process working directory.
	WorkDir string
	// Shell overrides the shell path; if empty, $SHELL is used.
	Shell  string
	Runner GitRunner // if nil, uses the real git subprocess
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// defaultGitRunner runs git as a real subprocess.
func defaultGitRunner(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// SystemInfo implements Provider. A working directory outside a git
// repository leaves GitBranch empty; any other git failure is returned
// alongside the partially filled info.
func (l *Local) SystemInfo(ctx context.Context) (SystemInfo, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	runner := l.Runner
	if runner == nil {
		runner = defaultGitRunner
	}

	info := SystemInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		Term: getenv("TERM"),
	}

	shellPath := l.Shell
	if shellPath == "" {
		shellPath = getenv("SHELL")
	}
	info.Shell = ShellName(shellPath)

	if home, err := os.UserHomeDir(); err == nil {
		info.Home = home
	}
	if u, err := user.Current(); err == nil {
		info.User = u.Username
	} else {
		info.User = getenv("USER")
	}

	info.WorkDir = l.WorkDir
	if info.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return info, err
		}
		info.WorkDir = wd
	}

	branch, err := runner(ctx, info.WorkDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		if isExitCode128(err) || errors.Is(err, exec.ErrNotFound) {
			return info, nil
		}
		return info, err
	}
	info.GitBranch = strings.TrimSpace(branch)
	return info, nil
}

// ShellName maps a shell path to its base name, defaulting to "sh".
func ShellName(path string) string {
	name := filepath.Base(strings.TrimSpace(path))
	switch name {
	case "", ".", "/":
		return "sh"
	}
	return name
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code 128.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}
