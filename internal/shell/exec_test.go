package shell

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"pbak/internal/pbak"
)

func TestExecRunner_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cmd        pbak.Command
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "success with output",
			cmd:        pbak.Command{Name: "sh", Args: []string{"-c", "echo hello"}},
			wantStdout: "hello\n",
		},
		{
			name:       "non-zero exit is not an error",
			cmd:        pbak.Command{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}},
			wantExit:   3,
			wantStderr: "oops\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewExecRunner(pbak.NewNopLogger())
			res, err := r.Run(context.Background(), tt.cmd)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if res.Stdout != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if res.Stderr != tt.wantStderr {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestExecRunner_Dir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewExecRunner(pbak.NewNopLogger())
	res, err := r.Run(context.Background(), pbak.Command{Name: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestExecRunner_MissingProgram(t *testing.T) {
	t.Parallel()
	r := NewExecRunner(pbak.NewNopLogger())
	if _, err := r.Run(context.Background(), pbak.Command{Name: "pbak-no-such-program"}); err == nil {
		t.Fatal("Run() error = nil, want error for missing program")
	}
}

func TestExecRunner_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewExecRunner(pbak.NewNopLogger())
	_, err := r.Run(ctx, pbak.Command{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
