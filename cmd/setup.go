package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/apercallc/ai-terminal/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure aiterm (re-run anytime to edit settings)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// runSetup runs the interactive wizard and saves the global config file.
func runSetup(in io.Reader, out io.Writer) error {
	path, err := config.GlobalPath()
	if err != nil {
		return err
	}

	// Existing global values become the wizard defaults.
	existing, err := config.LoadGlobal()
	if err != nil {
		return fmt.Errorf("loading global config: %w", err)
	}

	updated, err := config.RunWizard(in, out, existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := config.Save(path, updated); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(out, "  ✓ Config saved to %s\n", path)
	if key := updated.APIKey(getenv); key == "" && updated.Provider.APIKeyEnv != "" {
		fmt.Fprintf(out, "  ⚠ %s is not set; export it before running a goal.\n", updated.Provider.APIKeyEnv)
	}
	fmt.Fprintln(out, "  Setup complete. Run 'aiterm run \"<goal>\"' to start.")
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
