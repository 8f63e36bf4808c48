// Package shell runs external programs for the backup stages.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"pbak/internal/pbak"
)

// ExecRunner runs commands with os/exec and captures their output.
type ExecRunner struct {
	logger pbak.Logger
}

var _ pbak.CommandRunner = (*ExecRunner)(nil)

func NewExecRunner(logger pbak.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run starts cmd and waits for it. A non-zero exit is reported in the result,
// not as an error.
func (r *ExecRunner) Run(ctx context.Context, cmd pbak.Command) (*pbak.CommandResult, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("running command", "cmd", cmd.String(), "dir", cmd.Dir)
	err := c.Run()
	res := &pbak.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.ExitCode = exitErr.ExitCode()
		r.logger.Debug("command exited non-zero", "cmd", cmd.Name, "exit_code", res.ExitCode)
		return res, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, err
	}
}
