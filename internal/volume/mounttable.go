package volume

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"pbak/internal/pbak"
)

// SystemMountTable reads the kernel mount table on every query.
type SystemMountTable struct{}

var _ pbak.MountTable = SystemMountTable{}

// IsMounted reports whether mountPoint appears as a mount point. Paths are
// compared after filepath.Clean; prefixes do not count.
func (SystemMountTable) IsMounted(ctx context.Context, mountPoint string) (bool, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return false, fmt.Errorf("reading mount table: %w", err)
	}
	want := filepath.Clean(mountPoint)
	for _, p := range parts {
		if filepath.Clean(p.Mountpoint) == want {
			return true, nil
		}
	}
	return false, nil
}

// Partition is a mount table row for display.
type Partition struct {
	Device     string
	MountPoint string
	FSType     string
}

// Lookup returns the mount table row for mountPoint, or nil when not mounted.
func (SystemMountTable) Lookup(ctx context.Context, mountPoint string) (*Partition, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	want := filepath.Clean(mountPoint)
	for _, p := range parts {
		if filepath.Clean(p.Mountpoint) == want {
			return &Partition{Device: p.Device, MountPoint: p.Mountpoint, FSType: p.Fstype}, nil
		}
	}
	return nil, nil
}

// Usage returns used and total bytes of the filesystem at mountPoint.
func Usage(ctx context.Context, mountPoint string) (used, total uint64, err error) {
	u, err := disk.UsageWithContext(ctx, mountPoint)
	if err != nil {
		return 0, 0, fmt.Errorf("reading usage of %s: %w", mountPoint, err)
	}
	return u.Used, u.Total, nil
}
