package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pbak/internal/pbak"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

var start = time.Date(2024, 7, 6, 18, 45, 0, 0, time.UTC)

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on fresh database expected error, got nil")
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() after Migrate error = %v", err)
	}
	st, err := db.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus() error = %v", err)
	}
	if !st.UpToDate() {
		t.Errorf("SchemaStatus() = %+v, want up to date", st)
	}
}

func TestSQLiteDatabase_Runs(t *testing.T) {
	t.Run("create and finish", func(t *testing.T) {
		db := newTestDB(t)

		run, err := db.CreateRun("key-1", "run", start)
		if err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if run.ID == 0 || run.Status != pbak.StatusRunning {
			t.Errorf("CreateRun() = %+v, want an ID and status running", run)
		}

		finished := start.Add(3 * time.Minute)
		if err := db.FinishRun(run.ID, pbak.StatusDegraded, finished); err != nil {
			t.Fatalf("FinishRun() error = %v", err)
		}

		got, err := db.FindRunByKey("key-1")
		if err != nil {
			t.Fatalf("FindRunByKey() error = %v", err)
		}
		if got.Status != pbak.StatusDegraded {
			t.Errorf("Status = %q, want %q", got.Status, pbak.StatusDegraded)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
			t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
		}
		if !got.StartedAt.Equal(start) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
		}
	})

	t.Run("find missing run", func(t *testing.T) {
		db := newTestDB(t)
		got, err := db.FindRunByKey("nope")
		if err != nil {
			t.Fatalf("FindRunByKey() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindRunByKey() = %+v, want nil", got)
		}
	})

	t.Run("finish unknown run", func(t *testing.T) {
		db := newTestDB(t)
		err := db.FinishRun(99, pbak.StatusSuccess, start)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("FinishRun() error = %v, want sql.ErrNoRows", err)
		}
	})

	t.Run("duplicate run key", func(t *testing.T) {
		db := newTestDB(t)
		if _, err := db.CreateRun("same", "run", start); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if _, err := db.CreateRun("same", "run", start); err == nil {
			t.Error("CreateRun() with duplicate key expected error")
		}
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		db := newTestDB(t)
		for i, key := range []string{"a", "b", "c"} {
			if _, err := db.CreateRun(key, "run", start.Add(time.Duration(i)*time.Hour)); err != nil {
				t.Fatalf("CreateRun(%s) error = %v", key, err)
			}
		}

		runs, err := db.ListRuns(2)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("len(ListRuns(2)) = %d, want 2", len(runs))
		}
		if runs[0].RunKey != "c" || runs[1].RunKey != "b" {
			t.Errorf("ListRuns() keys = %s, %s, want c, b", runs[0].RunKey, runs[1].RunKey)
		}
		if runs[0].FinishedAt != nil {
			t.Errorf("FinishedAt = %v, want nil for unfinished run", runs[0].FinishedAt)
		}
	})
}

func TestSQLiteDatabase_Stages(t *testing.T) {
	db := newTestDB(t)

	run, err := db.CreateRun("key-1", "run", start)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	stages := []pbak.StageResult{
		{Stage: pbak.StageRetrieve, Outcome: pbak.OutcomeSkipped, Detail: "no new files", RecordedAt: start},
		{Stage: pbak.StageSyncPrimary, Outcome: pbak.OutcomeOK, Files: 12, Bytes: 300 << 20, RecordedAt: start.Add(time.Minute)},
		{Stage: pbak.StageSyncVolume, Outcome: pbak.OutcomeWarning, Detail: "volume remains mounted", RecordedAt: start.Add(2 * time.Minute)},
	}
	for _, st := range stages {
		if err := db.RecordStage(run.ID, st); err != nil {
			t.Fatalf("RecordStage(%s) error = %v", st.Stage, err)
		}
	}

	got, err := db.ListStages(run.ID)
	if err != nil {
		t.Fatalf("ListStages() error = %v", err)
	}
	if len(got) != len(stages) {
		t.Fatalf("len(ListStages()) = %d, want %d", len(got), len(stages))
	}
	for i, want := range stages {
		g := got[i]
		if g.Stage != want.Stage || g.Outcome != want.Outcome || g.Files != want.Files ||
			g.Bytes != want.Bytes || g.Detail != want.Detail || !g.RecordedAt.Equal(want.RecordedAt) {
			t.Errorf("stage %d = %+v, want %+v", i, *g, want)
		}
	}

	if err := db.RecordStage(12345, stages[0]); err == nil {
		t.Error("RecordStage() for unknown run expected foreign key error")
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.CreateRun("key-1", "run", start); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copied, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copied.Close()

	if err := copied.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	runs, err := copied.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() on backup error = %v", err)
	}
	if len(runs) != 1 || runs[0].RunKey != "key-1" {
		t.Errorf("backup runs = %+v, want key-1", runs)
	}
}
