package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/runs"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent run, or all runs with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runs.NewStore()
		if err != nil {
			return err
		}

		if statusAll {
			all, err := store.List()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				cmd.Println("no runs recorded")
				return nil
			}
			for _, r := range all {
				cmd.Printf("%s  %-17s  %s  %s\n", shortID(r.ID), r.Snapshot.Label(), r.StartTime.Format("2006-01-02 15:04"), r.Goal)
			}
			return nil
		}

		r, err := store.Latest()
		if err != nil {
			if errors.Is(err, runs.ErrNoRun) {
				cmd.Println("no runs recorded")
				return nil
			}
			return err
		}

		s := r.Snapshot
		steps := 0
		if s.Plan != nil {
			steps = len(s.Plan.Steps)
		}
		done := 0
		for _, st := range s.StepStatuses() {
			if st == agent.StepDone {
				done++
			}
		}

		cmd.Printf("Run: %s\n", r.ID)
		cmd.Printf("Goal: %s\n", r.Goal)
		cmd.Printf("State: %s\n", s.Label())
		cmd.Printf("Mode: %s\n", r.Mode)
		cmd.Printf("Started: %s\n", r.StartTime.Format(time.RFC3339))
		cmd.Printf("Duration: %s\n", r.Duration(time.Now()).Round(time.Second))
		cmd.Printf("Steps: %d/%d\n", done, steps)
		cmd.Printf("Commands: %d\n", len(s.History))
		if s.Error != "" {
			cmd.Printf("Error: %s\n", s.Error)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "list every recorded run, newest first")
	rootCmd.AddCommand(statusCmd)
}
