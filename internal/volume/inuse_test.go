package volume

import (
	"context"
	"testing"

	"pbak/internal/config"
	"pbak/internal/testutil"
)

func TestFuserChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exitCode int
		want     bool
		wantErr  bool
	}{
		{name: "processes found", exitCode: 0, want: true},
		{name: "no processes", exitCode: 1, want: false},
		{name: "fuser failure", exitCode: 2, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := testutil.NewMockCommandRunner()
			runner.Respond("fuser", tt.exitCode, "")
			c := NewFuserChecker(runner)

			got, err := c.InUse(context.Background(), "/mnt/pbak")
			if (err != nil) != tt.wantErr {
				t.Fatalf("InUse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("InUse() = %v, want %v", got, tt.want)
			}
			if calls := runner.CommandLines(); calls[0] != "fuser -m /mnt/pbak" {
				t.Errorf("command = %q, want %q", calls[0], "fuser -m /mnt/pbak")
			}
		})
	}
}

func TestNewInUseCheckerFromConfig(t *testing.T) {
	t.Parallel()
	runner := testutil.NewMockCommandRunner()

	if c, err := NewInUseCheckerFromConfig(config.VolumeConfig{}, runner); err != nil {
		t.Errorf("default error = %v", err)
	} else if _, ok := c.(*FuserChecker); !ok {
		t.Errorf("default checker = %T, want *FuserChecker", c)
	}
	if c, err := NewInUseCheckerFromConfig(config.VolumeConfig{InUseCheck: "process"}, runner); err != nil {
		t.Errorf("process error = %v", err)
	} else if _, ok := c.(ProcessChecker); !ok {
		t.Errorf("process checker = %T, want ProcessChecker", c)
	}
	if _, err := NewInUseCheckerFromConfig(config.VolumeConfig{InUseCheck: "lsof"}, runner); err == nil {
		t.Error("unknown checker error = nil, want error")
	}
}

func TestUnder(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/mnt/pbak", "/mnt/pbak", true},
		{"/mnt/pbak", "/mnt/pbak/photos/a.NEF", true},
		{"/mnt/pbak", "/mnt/pbak2/a.NEF", false},
		{"/mnt/pbak", "/home/me", false},
	}
	for _, tt := range tests {
		tt := tt
		if got := under(tt.root, tt.path); got != tt.want {
			t.Errorf("under(%q, %q) = %v, want %v", tt.root, tt.path, got, tt.want)
		}
	}
}
