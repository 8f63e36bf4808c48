package pbak

import "time"

// RunHistory persists run outcomes. It is never consulted to decide what to copy.
type RunHistory interface {
	CheckMigrations() error
	Migrate() error
	Close() error

	CreateRun(runKey, operation string, startedAt time.Time) (*Run, error)
	RecordStage(runID int64, stage StageResult) error
	FinishRun(runID int64, status string, finishedAt time.Time) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)
	ListStages(runID int64) ([]*StageResult, error)
}
