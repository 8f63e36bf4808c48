package testutil

import (
	"fmt"
	"sync"
	"time"

	"pbak/internal/pbak"
)

// MockRunHistory is an in-memory pbak.RunHistory.
type MockRunHistory struct {
	mu     sync.Mutex
	runs   []*pbak.Run
	stages map[int64][]*pbak.StageResult
	nextID int64
}

var _ pbak.RunHistory = (*MockRunHistory)(nil)

func NewMockRunHistory() *MockRunHistory {
	return &MockRunHistory{stages: make(map[int64][]*pbak.StageResult)}
}

func (h *MockRunHistory) CheckMigrations() error { return nil }
func (h *MockRunHistory) Migrate() error         { return nil }
func (h *MockRunHistory) Close() error           { return nil }

func (h *MockRunHistory) CreateRun(runKey, operation string, startedAt time.Time) (*pbak.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	run := &pbak.Run{
		ID:        h.nextID,
		RunKey:    runKey,
		Operation: operation,
		StartedAt: startedAt,
		Status:    pbak.StatusRunning,
	}
	h.runs = append(h.runs, run)
	return run, nil
}

func (h *MockRunHistory) RecordStage(runID int64, stage pbak.StageResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.find(runID) == nil {
		return fmt.Errorf("run %d not found", runID)
	}
	h.stages[runID] = append(h.stages[runID], &stage)
	return nil
}

func (h *MockRunHistory) FinishRun(runID int64, status string, finishedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	run := h.find(runID)
	if run == nil {
		return fmt.Errorf("run %d not found", runID)
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	return nil
}

func (h *MockRunHistory) ListRuns(limit int) ([]*pbak.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*pbak.Run
	for i := len(h.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.runs[i])
	}
	return out, nil
}

func (h *MockRunHistory) ListStages(runID int64) ([]*pbak.StageResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*pbak.StageResult(nil), h.stages[runID]...), nil
}

func (h *MockRunHistory) find(id int64) *pbak.Run {
	for _, r := range h.runs {
		if r.ID == id {
			return r
		}
	}
	return nil
}
