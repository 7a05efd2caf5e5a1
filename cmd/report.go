package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/apercallc/ai-terminal/internal/report"
	"github.com/apercallc/ai-terminal/internal/runs"
)

var (
	reportID     string
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a run as Markdown or JSON",
	Long: `Render a recorded run. Without --output the report is printed; Markdown
is styled when stdout is a terminal. --output writes a file, and a directory
(or "-" for report_dir) gets a generated file name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runs.NewStore()
		if err != nil {
			return err
		}

		var r *runs.Run
		if reportID != "" {
			r, err = store.Load(reportID)
		} else {
			r, err = store.Latest()
		}
		if err != nil {
			if errors.Is(err, runs.ErrNoRun) {
				return fmt.Errorf("no run found")
			}
			return err
		}

		renderer, err := report.ForFormat(reportFormat)
		if err != nil {
			return err
		}
		data, err := renderer.Render(r)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}

		if reportOutput == "" {
			return printReport(cmd, data)
		}

		path := reportPath(reportOutput, r, reportFormat)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		cmd.Printf("Report written: %s\n", path)
		return nil
	},
}

func printReport(cmd *cobra.Command, data []byte) error {
	out := cmd.OutOrStdout()
	if strings.EqualFold(reportFormat, "json") || !isTerminal(out) {
		_, err := out.Write(data)
		return err
	}
	styled, err := glamour.Render(string(data), "auto")
	if err != nil {
		_, err = out.Write(data)
		return err
	}
	_, err = fmt.Fprint(out, styled)
	return err
}

// reportPath resolves --output. A directory, or "-" meaning report_dir, gets
// aiterm-<id>.<ext> inside it.
func reportPath(output string, r *runs.Run, format string) string {
	ext := ".md"
	if strings.EqualFold(format, "json") {
		ext = ".json"
	}
	dir := ""
	switch {
	case output == "-":
		dir = GetConfig().ReportDir
		if dir == "" {
			dir = "."
		}
	default:
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			dir = output
		}
	}
	if dir == "" {
		return output
	}
	return filepath.Join(dir, "aiterm-"+shortID(r.ID)+ext)
}

func init() {
	reportCmd.Flags().StringVar(&reportID, "id", "", "run id or unique prefix (default: latest run)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "output format: markdown or json")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", `file or directory to write; "-" uses report_dir`)
	rootCmd.AddCommand(reportCmd)
}
