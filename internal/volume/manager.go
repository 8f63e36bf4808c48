package volume

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/avast/retry-go"

	"pbak/internal/pbak"
)

const (
	DefaultMaxAttempts  = 20
	DefaultPollInterval = 2 * time.Second
)

// errBusy marks an attempt where the mount point was still in use.
var errBusy = errors.New("mount point in use")

// WaitOptions bounds the wait before an unmount.
type WaitOptions struct {
	MaxAttempts  int
	PollInterval time.Duration
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// UnmountFunc detaches the volume at mountPoint.
type UnmountFunc func(ctx context.Context, mountPoint string) error

// Manager drives a volume through mount, work and guarded unmount.
type Manager struct {
	table  pbak.MountTable
	inUse  pbak.InUseChecker
	opts   WaitOptions
	logger pbak.Logger
}

var _ pbak.VolumeLifecycle = (*Manager)(nil)

// NewManager creates a Manager.
func NewManager(table pbak.MountTable, inUse pbak.InUseChecker, opts WaitOptions, logger pbak.Logger) *Manager {
	return &Manager{
		table:  table,
		inUse:  inUse,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// IsMounted queries the live mount table.
func (m *Manager) IsMounted(ctx context.Context, mountPoint string) (bool, error) {
	return m.table.IsMounted(ctx, mountPoint)
}

// WithMountedVolume mounts vol if needed, runs work, and then attempts a
// guarded unmount on every exit path, including a panic in work.
//
// A missing container is not an error condition for the caller: it returns
// an error wrapping pbak.ErrVolumeAbsent and neither mounter nor work is called.
// A failed mount is recorded in the report and work still runs. The returned
// error joins the work error and any unmount failure.
func (m *Manager) WithMountedVolume(ctx context.Context, vol pbak.Volume, mounter pbak.Mounter, work pbak.WorkFunc) (report *pbak.LifecycleReport, err error) {
	report = &pbak.LifecycleReport{}

	if _, statErr := os.Stat(vol.ContainerPath); statErr != nil {
		report.Skipped = true
		if errors.Is(statErr, fs.ErrNotExist) {
			return report, fmt.Errorf("%s: %w", vol.ContainerPath, pbak.ErrVolumeAbsent)
		}
		return report, fmt.Errorf("%s: %w: %v", vol.ContainerPath, pbak.ErrVolumeAbsent, statErr)
	}

	mounted, mErr := m.table.IsMounted(ctx, vol.MountPoint)
	if mErr != nil {
		m.logger.Warn("could not read mount table, assuming unmounted", "mount_point", vol.MountPoint, "error", mErr)
	}
	if mounted {
		report.Initial = pbak.Mounted
	} else {
		report.Initial = pbak.Unmounted
	}
	report.Final = report.Initial

	if !mounted {
		m.logger.Info("mounting volume", "container", vol.ContainerPath, "mount_point", vol.MountPoint)
		if err := mounter.Mount(ctx, vol); err != nil {
			report.MountErr = &pbak.MountError{MountPoint: vol.MountPoint, Err: err}
			report.Final = pbak.MountFailed
			m.logger.Warn("mount failed, continuing", "mount_point", vol.MountPoint, "error", err)
		} else {
			report.Final = pbak.MountedByUs
		}
	}

	defer func() {
		p := recover()

		if report.Final == pbak.MountedByUs || (report.Final == pbak.Mounted && vol.UnmountExternal) || report.Final == pbak.MountFailed {
			// Unmount must still happen when ctx was cancelled by the operator.
			res, uErr := m.WaitAndUnmount(context.WithoutCancel(ctx), vol.MountPoint, mounter.Unmount, m.opts)
			report.Unmount = res
			report.UnmountErr = uErr
			if res != nil {
				report.Final = res.State
			}
			err = errors.Join(report.WorkErr, uErr)
		} else {
			m.logger.Info("leaving externally mounted volume in place", "mount_point", vol.MountPoint)
			err = report.WorkErr
		}

		if p != nil {
			panic(p)
		}
	}()

	report.WorkErr = work(ctx)
	return report, report.WorkErr
}

// WaitAndUnmount polls the in-use checker and unmounts on the first attempt
// that finds the mount point idle. The unmount action runs at most once.
// After opts.MaxAttempts busy checks it gives up with pbak.ErrStillMounted.
// A failing check counts as busy.
func (m *Manager) WaitAndUnmount(ctx context.Context, mountPoint string, unmount UnmountFunc, opts WaitOptions) (*pbak.UnmountResult, error) {
	opts = opts.withDefaults()
	res := &pbak.UnmountResult{State: pbak.StillMounted}

	var unmountErr error
	attempted := false
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Attempts++
			busy, err := m.inUse.InUse(ctx, mountPoint)
			if err != nil {
				m.logger.Warn("in-use check failed, treating as busy", "mount_point", mountPoint, "error", err)
				busy = true
			}
			if busy {
				m.logger.Debug("mount point busy", "mount_point", mountPoint, "attempt", res.Attempts)
				return errBusy
			}

			attempted = true
			unmountErr = unmount(ctx, mountPoint)
			return nil
		},
		retry.Attempts(uint(opts.MaxAttempts)),
		retry.Delay(opts.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errBusy) }),
	)

	switch {
	case attempted && unmountErr != nil:
		m.logger.Warn("unmount failed", "mount_point", mountPoint, "error", unmountErr)
		return res, &pbak.UnmountError{MountPoint: mountPoint, Err: unmountErr}
	case attempted:
		res.State = pbak.Unmounted
		m.logger.Info("unmounted", "mount_point", mountPoint, "attempts", res.Attempts)
		return res, nil
	case err != nil && !errors.Is(err, errBusy):
		return res, err
	default:
		m.logger.Warn("volume remains mounted", "mount_point", mountPoint, "attempts", res.Attempts)
		return res, fmt.Errorf("%s after %d attempts: %w", mountPoint, res.Attempts, pbak.ErrStillMounted)
	}
}
