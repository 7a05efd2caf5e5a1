package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apercallc/ai-terminal/internal/config"
	"github.com/apercallc/ai-terminal/internal/logging"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is replaced in PersistentPreRunE once flags are parsed.
var logger = zap.NewNop()

var (
	verbose bool
	logFile string
)

// getenv is swapped in tests.
var getenv = os.Getenv

var rootCmd = &cobra.Command{
	Use:           "aiterm",
	Short:         "Turn a goal into shell commands, run them and recover from failures",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.New(logging.Options{Verbose: verbose, File: logFile, Console: logFile == "" && isTerminal(os.Stderr)})
		if err != nil {
			return fmt.Errorf("initialising logger: %w", err)
		}
		logger = log

		// Setup works before any config exists.
		if cmd.Name() == "setup" {
			return nil
		}

		// First run: no global config and an interactive terminal, so offer
		// the wizard. Pipes and tests continue with defaults.
		if path, err := config.GlobalPath(); err == nil {
			if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) && term.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(cmd.OutOrStdout(), "\n  Welcome to aiterm! Looks like this is your first time.")
				if err := runSetup(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// isTerminal reports whether v is an *os.File attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}
