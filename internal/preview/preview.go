// Package preview renders scaled-down copies of new photos with ImageMagick
// and writes a per-day launcher script for browsing them.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pbak/internal/config"
	"pbak/internal/pbak"
)

// Generator creates previews for photos that do not have one yet.
type Generator struct {
	runner    pbak.CommandRunner
	logger    pbak.Logger
	clock     pbak.Clock
	sourceDir string
	dir       string
	size      string
	convert   string
	viewer    string
	scriptDir string
}

var _ pbak.PreviewGenerator = (*Generator)(nil)

// NewGeneratorFromConfig creates a Generator from the previews config section.
func NewGeneratorFromConfig(cfg config.PreviewsConfig, runner pbak.CommandRunner, logger pbak.Logger, clock pbak.Clock) *Generator {
	g := &Generator{
		runner:    runner,
		logger:    logger,
		clock:     clock,
		sourceDir: cfg.SourceDir,
		dir:       cfg.Dir,
		size:      cfg.Size,
		convert:   cfg.ConvertBinary,
		viewer:    cfg.Viewer,
		scriptDir: cfg.ScriptDir,
	}
	if g.convert == "" {
		g.convert = "convert"
	}
	if g.size == "" {
		g.size = "1600x1600"
	}
	return g
}

// Missing returns the photos in the source directory that have no preview, sorted.
func (g *Generator) Missing() ([]string, error) {
	entries, err := os.ReadDir(g.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", g.sourceDir, err)
	}

	var missing []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !isJPEG(e.Name()) {
			continue
		}
		_, err := os.Lstat(filepath.Join(g.dir, e.Name()))
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking preview for %s: %w", e.Name(), err)
		}
		missing = append(missing, filepath.Join(g.sourceDir, e.Name()))
	}
	sort.Strings(missing)
	return missing, nil
}

// Generate converts every missing preview. A failed conversion is logged and
// skipped. When anything new was produced, the launcher script for today is
// written unless it already exists.
func (g *Generator) Generate(ctx context.Context) (*pbak.PreviewReport, error) {
	report := &pbak.PreviewReport{}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return report, fmt.Errorf("creating preview directory: %w", err)
	}

	missing, err := g.Missing()
	if err != nil {
		return report, err
	}
	g.logger.Info("generating previews", "count", len(missing))

	for _, src := range missing {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := filepath.Join(g.dir, filepath.Base(src))
		if err := g.render(ctx, src, out); err != nil {
			report.Failed = append(report.Failed, src)
			g.logger.Warn("preview failed", "file", src, "error", err)
			continue
		}
		report.Generated = append(report.Generated, out)
	}

	if len(report.Generated) == 0 {
		return report, nil
	}
	report.First = report.Generated[0]

	script, err := g.writeScript(report.First)
	if err != nil {
		g.logger.Warn("could not write launcher script", "error", err)
		return report, nil
	}
	report.Script = script
	return report, nil
}

// render runs convert into a temp name so a failed conversion never leaves a
// file that would count as an existing preview.
func (g *Generator) render(ctx context.Context, src, out string) error {
	tmp := filepath.Join(filepath.Dir(out), ".tmp-"+filepath.Base(out))
	cmd := pbak.Command{Name: g.convert, Args: []string{"-scale", g.size, src, tmp}}
	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("running %s: %w", cmd, err)
	}
	if err := pbak.CheckResult(cmd, res); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("moving preview into place: %w", err)
	}
	return nil
}

// ScriptPath returns today's launcher script path, or "" when disabled.
func (g *Generator) ScriptPath() string {
	if g.scriptDir == "" || g.viewer == "" {
		return ""
	}
	return filepath.Join(g.scriptDir, g.clock.Now().Format("2006-01-02")+".sh")
}

// writeScript creates today's launcher for first. An existing script is kept.
func (g *Generator) writeScript(first string) (string, error) {
	path := g.ScriptPath()
	if path == "" {
		return "", nil
	}
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(g.scriptDir, 0755); err != nil {
		return "", fmt.Errorf("creating script directory: %w", err)
	}
	content := fmt.Sprintf("#!/bin/sh\n%s %q\n", g.viewer, first)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	g.logger.Info("wrote launcher script", "path", path)
	return path, nil
}

// Open shows path in the configured viewer and waits for it to exit.
func (g *Generator) Open(ctx context.Context, path string) error {
	if g.viewer == "" {
		return errors.New("no viewer configured")
	}
	cmd := pbak.Command{Name: g.viewer, Args: []string{path}}
	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("running %s: %w", cmd, err)
	}
	return pbak.CheckResult(cmd, res)
}

func isJPEG(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}
