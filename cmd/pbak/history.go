package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		showStages, _ := cmd.Flags().GetBool("stages")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		out := cmd.OutOrStdout()
		table := newTable(out, []string{"#", "Operation", "Started", "Status", "Duration", "Files", "Size"})
		for _, e := range entries {
			r := e.Run
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Second).String()
			}
			var files int
			var bytes int64
			for _, s := range e.Stages {
				files += s.Files
				bytes += s.Bytes
			}
			table.Append([]string{
				strconv.FormatInt(r.ID, 10),
				r.Operation,
				formatTime(r.StartedAt),
				r.Status,
				duration,
				strconv.Itoa(files),
				summarizeBytes(bytes),
			})
		}
		table.Render()

		if !showStages {
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "\nRun #%d (%s)\n", e.Run.ID, e.Run.RunKey)
			st := newTable(out, []string{"Stage", "Outcome", "Files", "Size", "Detail"})
			for _, s := range e.Stages {
				st.Append([]string{s.Stage, string(s.Outcome), strconv.Itoa(s.Files), summarizeBytes(s.Bytes), s.Detail})
			}
			st.Render()
		}
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export PATH",
	Short: "Write a copy of the run history database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		if err := a.ExportHistory(dest); err != nil {
			return err
		}
		fmt.Printf("Exported run history to %s\n", dest)
		return nil
	},
}
