package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"pbak/internal/config"
	"pbak/internal/pbak"
)

// newTable returns a borderless, left-aligned table writer.
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetAutoWrapText(false)
	return table
}

func printStages(w io.Writer, stages []pbak.StageResult) {
	table := newTable(w, []string{"Stage", "Outcome", "Files", "Size", "Detail"})
	for _, s := range stages {
		files := ""
		if s.Files > 0 {
			files = strconv.Itoa(s.Files)
		}
		table.Append([]string{s.Stage, string(s.Outcome), files, summarizeBytes(s.Bytes), s.Detail})
	}
	table.Render()
}

func printPairs(title string, pairs []config.SyncPairConfig) {
	if len(pairs) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	table := newTable(os.Stdout, []string{"Source", "Destination", "Exclude"})
	for _, p := range pairs {
		table.Append([]string{p.Source, p.Destination, strings.Join(p.Exclude, " ")})
	}
	table.Render()
	fmt.Println()
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// progress draws one bar per sync pair when w is a terminal.
type progress struct {
	w    io.Writer
	tty  bool
	bar  *progressbar.ProgressBar
	pair pbak.SyncPair
}

func newProgress(w *os.File) *progress {
	return &progress{w: w, tty: term.IsTerminal(int(w.Fd()))}
}

// Update is a pbak.ProgressFunc.
func (p *progress) Update(pair pbak.SyncPair, done, total int) {
	if !p.tty {
		return
	}
	if p.bar == nil || pair.Source != p.pair.Source || pair.Destination != p.pair.Destination {
		p.Finish()
		p.pair = pair
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(pair.Destination),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
		)
	}
	p.bar.Set(done)
}

// Finish completes the current bar, if any.
func (p *progress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
