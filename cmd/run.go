package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/audit"
	"github.com/apercallc/ai-terminal/internal/config"
	"github.com/apercallc/ai-terminal/internal/convo"
	"github.com/apercallc/ai-terminal/internal/environment"
	"github.com/apercallc/ai-terminal/internal/executor"
	"github.com/apercallc/ai-terminal/internal/llm"
	"github.com/apercallc/ai-terminal/internal/logging"
	"github.com/apercallc/ai-terminal/internal/planner"
	"github.com/apercallc/ai-terminal/internal/runs"
	"github.com/apercallc/ai-terminal/internal/shell"
	"github.com/apercallc/ai-terminal/internal/tui"
)

var (
	runMode       string
	runPlain      bool
	runTimeout    time.Duration
	runMaxRetries int
	runShell      string
)

// newProvider is swapped in tests.
var newProvider = func(ctx context.Context, c config.Config) (llm.Provider, error) {
	return llm.New(ctx, llm.Config{
		Kind:    c.Provider.Kind,
		BaseURL: c.Provider.BaseURL,
		Model:   c.Provider.Model,
		APIKey:  c.APIKey(getenv),
		Timeout: c.ProviderTimeout(),
	}, logger)
}

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan and execute a goal in a shell session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := strings.TrimSpace(strings.Join(args, " "))
		if goal == "" {
			return errors.New("goal must not be empty")
		}

		settings, err := runSettings(cmd, GetConfig())
		if err != nil {
			return err
		}
		mode, err := executor.ParseMode(settings.Mode)
		if err != nil {
			return err
		}

		useTUI := !runPlain && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout())
		if useTUI && logFile == "" {
			// The TUI owns the terminal; logs go to the state file instead.
			if path, err := logging.StatePath(); err == nil {
				if l, err := logging.New(logging.Options{Verbose: verbose, File: path}); err == nil {
					_ = logger.Sync()
					logger = l
				}
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		provider, err := newProvider(ctx, settings)
		if err != nil {
			return fmt.Errorf("provider: %w", err)
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		shellPath := settings.Shell
		if shellPath == "" {
			shellPath = shell.DefaultShell
		}
		sess, err := shell.StartLocal(ctx, shell.Options{Shell: shellPath, Dir: wd, Logger: logger})
		if err != nil {
			return fmt.Errorf("starting shell: %w", err)
		}
		defer sess.Close()

		auditLog, err := openAudit(settings.AuditLog)
		if err != nil {
			return err
		}

		machine := agent.NewMachine(agent.WithMaxRetries(settings.Retries()))
		popts := []planner.Option{planner.WithLogger(logger)}
		if settings.Temperature != nil {
			popts = append(popts, planner.WithTemperature(*settings.Temperature))
		}
		ex := executor.New(executor.Options{
			Planner:        planner.New(provider, convo.New(), popts...),
			Machine:        machine,
			Environment:    &environment.Local{WorkDir: wd, Shell: shellPath},
			Audit:          auditLog,
			Session:        sess,
			Mode:           mode,
			CommandTimeout: settings.CommandTimeoutDuration(),
			Logger:         logger,
		})

		if !cmd.Flags().Changed("mode") {
			go watchMode(ctx, ex)
		}

		run := &runs.Run{
			ID:        uuid.NewString(),
			Goal:      goal,
			Mode:      string(mode),
			Provider:  provider.Name(),
			WorkDir:   wd,
			StartTime: time.Now(),
		}
		logger.Info("run started", zap.String("id", run.ID), zap.String("goal", goal), zap.String("mode", run.Mode))

		var final agent.Snapshot
		var execErr error
		if useTUI {
			final, execErr = tui.Run(ctx, tui.RunOptions{
				Controller: ex,
				Machine:    machine,
				Session:    sess,
				Execute:    func(ctx context.Context) error { return ex.ExecuteGoal(ctx, goal) },
			})
		} else {
			final, execErr = runInteractive(ctx, ex, goal, cmd.InOrStdin(), cmd.OutOrStdout())
		}

		stopTime := time.Now()
		run.StopTime = &stopTime
		run.Snapshot = final
		if err := saveRun(run); err != nil {
			logger.Warn("run not saved", zap.String("id", run.ID), zap.Error(err))
		}

		printOutcome(cmd.OutOrStdout(), run)
		if execErr != nil && !errors.Is(execErr, context.Canceled) {
			return execErr
		}
		if final.State == agent.StateError {
			return fmt.Errorf("run %s failed: %s", shortID(run.ID), final.Error)
		}
		return nil
	},
}

// runSettings applies run flags on top of the loaded config.
func runSettings(cmd *cobra.Command, settings config.Config) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		settings.Mode = strings.ToLower(runMode)
	}
	if flags.Changed("max-retries") {
		n := runMaxRetries
		settings.MaxRetries = &n
	}
	if flags.Changed("timeout") {
		settings.CommandTimeout = runTimeout.String()
	}
	if flags.Changed("shell") {
		settings.Shell = runShell
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// watchMode applies a changed mode from the config files to the live executor.
func watchMode(ctx context.Context, ex *executor.Executor) {
	files := []string{config.ProjectFile}
	if path, err := config.GlobalPath(); err == nil {
		files = append(files, path)
	}
	err := config.Watch(ctx, files, config.Load, func(c config.Config) {
		mode, err := executor.ParseMode(c.Mode)
		if err != nil || mode == ex.Mode() {
			return
		}
		logger.Info("mode changed by config", zap.String("mode", string(mode)))
		ex.SetMode(mode)
	}, logger)
	if err != nil && ctx.Err() == nil {
		logger.Warn("config watch stopped", zap.Error(err))
	}
}

// runInteractive drives a run from plain line input: the goal is planned, then
// each step awaiting approval is confirmed on in.
func runInteractive(ctx context.Context, ex *executor.Executor, goal string, in io.Reader, out io.Writer) (agent.Snapshot, error) {
	machine := ex.Machine()
	unsubscribe := machine.Subscribe(func(s agent.Snapshot) { printTransition(out, s) })
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := ex.ExecuteGoal(ctx, goal); err != nil {
		return machine.Snapshot(), err
	}

	for {
		s := machine.Snapshot()
		if s.State != agent.StateAwaitingApproval || s.CurrentStep == nil {
			return s, ctx.Err()
		}
		fmt.Fprintf(out, "Run step %d/%d? [y]es / [n]o / [a]uto: ", s.CurrentStepIndex+1, len(s.Plan.Steps))

		var answer string
		select {
		case line, ok := <-lines:
			if !ok {
				line = "n"
			}
			answer = strings.ToLower(strings.TrimSpace(line))
		case <-ctx.Done():
			ex.Cancel()
			return machine.Snapshot(), ctx.Err()
		}

		var err error
		switch answer {
		case "y", "yes", "":
			err = ex.ApproveCurrentStep()
		case "a", "auto":
			ex.SetMode(executor.ModeAuto)
			err = ex.ApproveCurrentStep()
		case "n", "no":
			err = ex.RejectCurrentStep()
		default:
			fmt.Fprintln(out, "Please answer y, n or a.")
			continue
		}
		if err != nil {
			return machine.Snapshot(), err
		}
	}
}

// printTransition writes a one-line account of s. It runs as a machine
// listener and must not call back into the executor.
func printTransition(w io.Writer, s agent.Snapshot) {
	switch s.State {
	case agent.StatePlanning:
		fmt.Fprintf(w, "Planning: %s\n", s.Goal)
	case agent.StateAwaitingApproval:
		if s.CurrentStepIndex == 0 && len(s.History) == 0 && s.Plan != nil {
			if s.Plan.Summary != "" {
				fmt.Fprintf(w, "Plan: %s\n", s.Plan.Summary)
			}
			for i, step := range s.Plan.Steps {
				fmt.Fprintf(w, "  %d. %s  [%s]\n", i+1, step.Command, step.RiskLevel)
			}
		}
		if step := s.CurrentStep; step != nil {
			fmt.Fprintf(w, "Next: %s\n  $ %s  (risk: %s)\n", step.Description, step.Command, step.RiskLevel)
		}
	case agent.StateExecuting:
		if step := s.CurrentStep; step != nil {
			if s.RetryCount > 0 {
				fmt.Fprintf(w, "Retry %d: $ %s\n", s.RetryCount, step.Command)
			} else {
				fmt.Fprintf(w, "Running: $ %s\n", step.Command)
			}
		}
	case agent.StateAnalyzing:
		if n := len(s.History); n > 0 {
			rec := s.History[n-1]
			fmt.Fprintf(w, "Failed (exit %d). Analysing...\n", rec.ExitCode)
			if out := strings.TrimSpace(convo.Truncate(rec.Output)); out != "" {
				fmt.Fprintln(w, indent(out, "  | "))
			}
		}
	case agent.StateComplete, agent.StateError, agent.StateCancelled:
		if s.Error != "" {
			fmt.Fprintf(w, "Run %s: %s\n", s.State, s.Error)
		} else {
			fmt.Fprintf(w, "Run %s.\n", s.State)
		}
	}
}

func printOutcome(w io.Writer, r *runs.Run) {
	s := r.Snapshot
	total := 0
	if s.Plan != nil {
		total = len(s.Plan.Steps)
	}
	done := 0
	for _, st := range s.StepStatuses() {
		if st == agent.StepDone {
			done++
		}
	}
	fmt.Fprintf(w, "Run %s %s: %d/%d steps, %d commands, %s\n",
		shortID(r.ID), s.Label(), done, total, len(s.History), r.Duration(time.Now()).Round(time.Second))
}

func openAudit(path string) (audit.Logger, error) {
	if path == "" {
		p, err := audit.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving audit log: %w", err)
		}
		path = p
	}
	l, err := audit.NewFileLogger(path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}

func saveRun(r *runs.Run) error {
	store, err := runs.NewStore()
	if err != nil {
		return err
	}
	return store.Save(r)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "approval mode: safe or auto (overrides config)")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "line-based prompts instead of the TUI")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-command timeout (overrides config)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "retries allowed per step (overrides config)")
	runCmd.Flags().StringVar(&runShell, "shell", "", "POSIX shell to run commands in")
	rootCmd.AddCommand(runCmd)
}
