package pbak

import (
	"context"
	"strings"
)

// Command describes one invocation of an external program.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// CommandResult is the outcome of a command that was started.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the program exited with status 0.
func (r *CommandResult) Success() bool {
	return r != nil && r.ExitCode == 0
}

// CommandRunner executes external programs. Run returns an error only when the
// program could not be started; a non-zero exit is reported in the result.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}
