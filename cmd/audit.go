package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/apercallc/ai-terminal/internal/audit"
)

var (
	auditLimit int
	auditRun   string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent entries from the command audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := GetConfig().AuditLog
		if path == "" {
			p, err := audit.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}

		entries, err := audit.ReadLog(path, 0)
		if err != nil {
			return err
		}
		var shown []audit.Entry
		for _, e := range entries {
			if e.Phase != audit.PhaseFinish {
				continue
			}
			if auditRun != "" && e.SessionID != auditRun {
				continue
			}
			shown = append(shown, e)
		}
		if auditLimit > 0 && len(shown) > auditLimit {
			shown = shown[len(shown)-auditLimit:]
		}
		if len(shown) == 0 {
			cmd.Println("no commands recorded")
			return nil
		}

		for _, e := range shown {
			status := "ok"
			if e.Success != nil && !*e.Success {
				status = "FAIL"
			}
			exit := "-"
			if e.ExitCode != nil {
				exit = strconv.Itoa(*e.ExitCode)
			}
			cmd.Printf("%s  %-4s  exit %-3s  %-8s  %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), status, exit, e.RiskLevel, e.Command)
			if e.Error != "" {
				cmd.Printf("    error: %s\n", e.Error)
			}
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "number of commands to show (0 for all)")
	auditCmd.Flags().StringVar(&auditRun, "session", "", "only show commands from this shell session id")
	rootCmd.AddCommand(auditCmd)
}
