package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pbak/internal/app"
	"pbak/internal/pbak"
)

// runOperation executes a named operation and prints its stage summary.
// It fails only when the run ended in error status.
func runOperation(cmd *cobra.Command, name string, skip ...string) (*app.PbakApp, *pbak.RunReport, error) {
	op, err := app.NewOperation(name, skip...)
	if err != nil {
		return nil, nil, err
	}

	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}

	progress := newProgress(os.Stderr)
	report, err := a.Run(cmd.Context(), op, progress.Update)
	progress.Finish()
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	printStages(os.Stdout, report.Stages)
	if report.Status() == pbak.StatusError {
		a.Close()
		return nil, nil, fmt.Errorf("run %s failed", report.RunKey)
	}
	return a, report, nil
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Retrieve, sync, back up to the volume and render previews",
	RunE: func(cmd *cobra.Command, args []string) error {
		var skip []string
		for flag, stage := range map[string]string{
			"skip-device":   pbak.StageRetrieve,
			"skip-volume":   pbak.StageSyncVolume,
			"skip-previews": pbak.StagePreviews,
		} {
			if v, _ := cmd.Flags().GetBool(flag); v {
				skip = append(skip, stage)
			}
		}

		a, report, err := runOperation(cmd, app.OpRun, skip...)
		if err != nil {
			return err
		}
		defer a.Close()

		noPrompt, _ := cmd.Flags().GetBool("no-prompt")
		offerPreview(cmd, a, report, noPrompt)
		return nil
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Download new files from the camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := runOperation(cmd, app.OpRetrieve)
		if err != nil {
			return err
		}
		return a.Close()
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy new files from the card to the primary destinations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := runOperation(cmd, app.OpSync)
		if err != nil {
			return err
		}
		return a.Close()
	},
}

var previewsCmd = &cobra.Command{
	Use:   "previews",
	Short: "Render previews for photos that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, report, err := runOperation(cmd, app.OpPreviews)
		if err != nil {
			return err
		}
		defer a.Close()

		noPrompt, _ := cmd.Flags().GetBool("no-prompt")
		offerPreview(cmd, a, report, noPrompt)
		return nil
	},
}

// offerPreview asks whether to open the first new preview. It only asks
// when stdin is a terminal.
func offerPreview(cmd *cobra.Command, a *app.PbakApp, report *pbak.RunReport, noPrompt bool) {
	pr := report.Preview
	if pr == nil || pr.First == "" {
		return
	}
	fmt.Printf("%d new preview(s), first: %s\n", len(pr.Generated), pr.First)
	if pr.Script != "" {
		fmt.Printf("Launcher script: %s\n", pr.Script)
	}

	if noPrompt || !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	fmt.Print("Open? [Yn] ")
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "" && answer != "y" && answer != "yes" {
		return
	}
	if err := a.OpenPreview(cmd.Context(), pr.First); err != nil {
		fmt.Fprintf(os.Stderr, "opening preview: %v\n", err)
	}
}

func summarizeBytes(n int64) string {
	if n <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(n))
}
