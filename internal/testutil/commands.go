package testutil

import (
	"context"
	"strings"
	"sync"

	"pbak/internal/pbak"
)

// CommandHandler returns the scripted outcome for one command.
type CommandHandler func(cmd pbak.Command) (*pbak.CommandResult, error)

// MockCommandRunner records every command and answers from scripted handlers
// keyed by program name. Unscripted programs succeed with empty output.
type MockCommandRunner struct {
	mu       sync.Mutex
	handlers map[string]CommandHandler
	calls    []pbak.Command
}

var _ pbak.CommandRunner = (*MockCommandRunner)(nil)

func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{handlers: make(map[string]CommandHandler)}
}

// Handle scripts the outcome for a program name.
func (r *MockCommandRunner) Handle(name string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Respond scripts a fixed outcome for a program name.
func (r *MockCommandRunner) Respond(name string, exitCode int, stdout string) {
	r.Handle(name, func(pbak.Command) (*pbak.CommandResult, error) {
		return &pbak.CommandResult{ExitCode: exitCode, Stdout: stdout}, nil
	})
}

func (r *MockCommandRunner) Run(ctx context.Context, cmd pbak.Command) (*pbak.CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.handlers[cmd.Name]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return &pbak.CommandResult{}, nil
	}
	return h(cmd)
}

// Calls returns every recorded command.
func (r *MockCommandRunner) Calls() []pbak.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pbak.Command(nil), r.calls...)
}

// CallsTo returns the recorded commands for one program name.
func (r *MockCommandRunner) CallsTo(name string) []pbak.Command {
	var out []pbak.Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// CommandLines renders recorded commands as strings for easy comparison.
func (r *MockCommandRunner) CommandLines() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, strings.TrimSpace(c.String()))
	}
	return out
}
