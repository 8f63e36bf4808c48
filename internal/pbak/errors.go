package pbak

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrNoNewFiles        = errors.New("no new files on device")
	ErrProtocolParse     = errors.New("malformed device listing")
	ErrVolumeAbsent      = errors.New("volume container not present")
	ErrStillMounted      = errors.New("volume remains mounted")
)

// DeviceUnavailableError is returned when the device tool cannot reach a device.
type DeviceUnavailableError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *DeviceUnavailableError) Error() string {
	msg := fmt.Sprintf("device unavailable: %s exited with status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *DeviceUnavailableError) Unwrap() error {
	return ErrDeviceUnavailable
}

// ProtocolParseError reports listing output that looked like a file listing
// but yielded no records.
type ProtocolParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ProtocolParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing device listing: line %d %q: %s", e.Line, e.Text, e.Reason)
	}
	return fmt.Sprintf("parsing device listing: %s", e.Reason)
}

func (e *ProtocolParseError) Unwrap() error {
	return ErrProtocolParse
}

// MountError is a failed mount attempt.
type MountError struct {
	MountPoint string
	Err        error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mounting %s: %v", e.MountPoint, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// UnmountError is a failed unmount attempt.
type UnmountError struct {
	MountPoint string
	Err        error
}

func (e *UnmountError) Error() string {
	return fmt.Sprintf("unmounting %s: %v", e.MountPoint, e.Err)
}

func (e *UnmountError) Unwrap() error {
	return e.Err
}

// CopyError is a failure copying one file. It aborts the rest of its pair.
type CopyError struct {
	Source      string
	Destination string
	Err         error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copying %s to %s: %v", e.Source, e.Destination, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// ExitError is a command that started but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// CheckResult converts a non-zero exit into an *ExitError.
func CheckResult(cmd Command, res *CommandResult) error {
	if res.Success() {
		return nil
	}
	return &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
}
