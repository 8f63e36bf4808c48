package volume

import (
	"context"
	"fmt"

	"pbak/internal/config"
	"pbak/internal/pbak"
)

// VeraCrypt mounts and dismounts containers with the veracrypt text interface.
// Success is judged by exit status only.
type VeraCrypt struct {
	runner  pbak.CommandRunner
	binary  string
	useSudo bool
}

var _ pbak.Mounter = (*VeraCrypt)(nil)

// NewVeraCrypt creates a VeraCrypt mounter. An empty binary defaults to
// /usr/bin/veracrypt, the path the sudoers rule is written for.
func NewVeraCrypt(runner pbak.CommandRunner, binary string, useSudo bool) *VeraCrypt {
	if binary == "" {
		binary = "/usr/bin/veracrypt"
	}
	return &VeraCrypt{runner: runner, binary: binary, useSudo: useSudo}
}

func NewVeraCryptFromConfig(cfg config.VolumeConfig, runner pbak.CommandRunner) *VeraCrypt {
	return NewVeraCrypt(runner, cfg.Binary, cfg.UseSudo)
}

func (v *VeraCrypt) Mount(ctx context.Context, vol pbak.Volume) error {
	args := []string{"--text", "--non-interactive"}
	if vol.KeyfilePath != "" {
		args = append(args, "--keyfiles", vol.KeyfilePath)
	}
	args = append(args, "--mount", vol.ContainerPath, vol.MountPoint)
	return v.run(ctx, args)
}

func (v *VeraCrypt) Unmount(ctx context.Context, mountPoint string) error {
	return v.run(ctx, []string{"--text", "--non-interactive", "-d", mountPoint})
}

func (v *VeraCrypt) run(ctx context.Context, args []string) error {
	cmd := pbak.Command{Name: v.binary, Args: args}
	if v.useSudo {
		cmd = pbak.Command{Name: "sudo", Args: append([]string{v.binary}, args...)}
	}
	res, err := v.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("running %s: %w", cmd, err)
	}
	return pbak.CheckResult(cmd, res)
}

// SystemUnmount detaches a filesystem with umount(8).
type SystemUnmount struct {
	runner pbak.CommandRunner
}

var _ pbak.Unmounter = (*SystemUnmount)(nil)

func NewSystemUnmount(runner pbak.CommandRunner) *SystemUnmount {
	return &SystemUnmount{runner: runner}
}

func (u *SystemUnmount) Unmount(ctx context.Context, path string) error {
	cmd := pbak.Command{Name: "umount", Args: []string{path}}
	res, err := u.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("running %s: %w", cmd, err)
	}
	return pbak.CheckResult(cmd, res)
}
