package volume

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"pbak/internal/config"
	"pbak/internal/pbak"
)

// FuserChecker asks fuser(1) whether any process uses the filesystem.
// fuser exits 0 when it finds users and 1 when it finds none.
type FuserChecker struct {
	runner pbak.CommandRunner
	binary string
}

var _ pbak.InUseChecker = (*FuserChecker)(nil)

func NewFuserChecker(runner pbak.CommandRunner) *FuserChecker {
	return &FuserChecker{runner: runner, binary: "fuser"}
}

func (c *FuserChecker) InUse(ctx context.Context, mountPoint string) (bool, error) {
	cmd := pbak.Command{Name: c.binary, Args: []string{"-m", mountPoint}}
	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return false, fmt.Errorf("running %s: %w", cmd, err)
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &pbak.ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
}

// ProcessChecker scans the process table for open files or working
// directories under the mount point. Processes it may not inspect are skipped.
type ProcessChecker struct{}

var _ pbak.InUseChecker = ProcessChecker{}

func (ProcessChecker) InUse(ctx context.Context, mountPoint string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("listing processes: %w", err)
	}
	root := filepath.Clean(mountPoint)
	for _, p := range procs {
		if cwd, err := p.CwdWithContext(ctx); err == nil && under(root, cwd) {
			return true, nil
		}
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if under(root, f.Path) {
				return true, nil
			}
		}
	}
	return false, nil
}

func under(root, path string) bool {
	path = filepath.Clean(path)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// NewInUseCheckerFromConfig selects the checker named by the volume config.
func NewInUseCheckerFromConfig(cfg config.VolumeConfig, runner pbak.CommandRunner) (pbak.InUseChecker, error) {
	switch cfg.InUseCheck {
	case "fuser", "":
		return NewFuserChecker(runner), nil
	case "process":
		return ProcessChecker{}, nil
	default:
		return nil, fmt.Errorf("unknown in_use_check: %q", cfg.InUseCheck)
	}
}
