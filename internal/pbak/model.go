package pbak

import (
	"fmt"
	"time"
)

// SyncPair maps a source selector to a destination directory.
// Source is a glob that may use ** and {a,b} alternation.
type SyncPair struct {
	Source      string
	Destination string
	Exclude     []string
}

func (p SyncPair) String() string {
	return p.Source + " -> " + p.Destination
}

// RangeMode selects how the count of a RetrievalDirective is derived.
type RangeMode string

const (
	// RangeListingSize uses the number of listed entries as the count.
	RangeListingSize RangeMode = "listing_size"
	// RangeToEnd counts from the first new index through the last listed index.
	RangeToEnd RangeMode = "to_end"
)

// ParseRangeMode validates a configured range mode. Empty selects RangeListingSize.
func ParseRangeMode(s string) (RangeMode, error) {
	switch RangeMode(s) {
	case "", RangeListingSize:
		return RangeListingSize, nil
	case RangeToEnd:
		return RangeToEnd, nil
	default:
		return "", fmt.Errorf("unknown range mode: %q", s)
	}
}

// RetrievalDirective identifies the device indices to pull.
type RetrievalDirective struct {
	Start     int
	Count     int
	LastIndex int
	Mode      RangeMode
}

// End is the last index covered, clamped to the last listed index.
func (d RetrievalDirective) End() int {
	end := d.Start + d.Count - 1
	if d.LastIndex > 0 && end > d.LastIndex {
		end = d.LastIndex
	}
	return end
}

// Range formats the directive in the device tool's "start-end" syntax.
func (d RetrievalDirective) Range() string {
	return fmt.Sprintf("%d-%d", d.Start, d.End())
}

// RetrievalResult summarizes a device retrieval.
type RetrievalResult struct {
	Directive RetrievalDirective
	Listed    int
	Existing  int
}

// MountState tracks a volume through one lifecycle.
type MountState int

const (
	Unmounted MountState = iota
	Mounted
	MountedByUs
	MountFailed
	StillMounted
)

func (s MountState) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case MountedByUs:
		return "mounted-by-us"
	case MountFailed:
		return "mount-failed"
	case StillMounted:
		return "still-mounted"
	default:
		return fmt.Sprintf("MountState(%d)", int(s))
	}
}

// Volume is an encrypted container and the directory it mounts on.
type Volume struct {
	ContainerPath string
	MountPoint    string
	KeyfilePath   string
	// UnmountExternal unmounts the volume at the end even when it was
	// already mounted before the lifecycle began.
	UnmountExternal bool
}

// UnmountResult is the outcome of a guarded unmount.
type UnmountResult struct {
	Attempts int
	State    MountState
}

// LifecycleReport records what happened to a volume during WithMountedVolume.
type LifecycleReport struct {
	Initial  MountState
	Final    MountState
	Skipped  bool
	MountErr error
	WorkErr  error
	// UnmountErr is an *UnmountError or ErrStillMounted.
	UnmountErr error
	Unmount    *UnmountResult
}

// PairResult is the outcome of synchronizing one pair.
type PairResult struct {
	Pair       SyncPair
	Candidates int
	Copied     []string
	Bytes      int64
	Err        error
}

// SyncReport aggregates the pair results of one Sync call.
type SyncReport struct {
	Pairs []*PairResult
}

// Copied returns the number of files copied across all pairs.
func (r *SyncReport) Copied() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, p := range r.Pairs {
		n += len(p.Copied)
	}
	return n
}

// Bytes returns the number of bytes copied across all pairs.
func (r *SyncReport) Bytes() int64 {
	if r == nil {
		return 0
	}
	var n int64
	for _, p := range r.Pairs {
		n += p.Bytes
	}
	return n
}

// ProgressFunc is called after each whole file is copied.
type ProgressFunc func(pair SyncPair, done, total int)

// PreviewReport summarizes a preview generation pass.
type PreviewReport struct {
	Generated []string
	Failed    []string
	// First is the first newly generated preview, empty when none.
	First string
	// Script is the launcher script written this pass, empty when none.
	Script string
}

// StageOutcome classifies how a run stage ended.
type StageOutcome string

const (
	OutcomeOK      StageOutcome = "ok"
	OutcomeSkipped StageOutcome = "skipped"
	OutcomeWarning StageOutcome = "warning"
	OutcomeError   StageOutcome = "error"
)

// StageResult is one stage's entry in a run report.
type StageResult struct {
	Stage      string
	Outcome    StageOutcome
	Files      int
	Bytes      int64
	Detail     string
	RecordedAt time.Time
}

// Run statuses.
const (
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Run is a persisted run history entry.
type Run struct {
	ID         int64
	RunKey     string
	Operation  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// RunReport is the in-memory result of BackupService.Run.
type RunReport struct {
	RunKey  string
	Stages  []StageResult
	Preview *PreviewReport
}

// Status folds the stage outcomes into a run status.
func (r *RunReport) Status() string {
	status := StatusSuccess
	for _, s := range r.Stages {
		switch s.Outcome {
		case OutcomeError:
			return StatusError
		case OutcomeWarning:
			status = StatusDegraded
		}
	}
	return status
}
