package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pbak/internal/database/migrations"
	"pbak/internal/pbak"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements pbak.RunHistory using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// Compile-time check that SQLiteDatabase implements pbak.RunHistory
var _ pbak.RunHistory = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// An in-memory database is limited to one connection, since each connection
// would otherwise get its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Runs

func (s *SQLiteDatabase) CreateRun(runKey, operation string, startedAt time.Time) (*pbak.Run, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (run_key, operation, started_at, status) VALUES (?, ?, ?, ?)",
		runKey, operation, startedAt.UTC(), pbak.StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading run id: %w", err)
	}
	return &pbak.Run{
		ID:        id,
		RunKey:    runKey,
		Operation: operation,
		StartedAt: startedAt,
		Status:    pbak.StatusRunning,
	}, nil
}

func (s *SQLiteDatabase) FinishRun(runID int64, status string, finishedAt time.Time) error {
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, finishedAt.UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %d: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// ListRuns returns at most limit runs, newest first.
func (s *SQLiteDatabase) ListRuns(limit int) ([]*pbak.Run, error) {
	rows, err := s.db.Query(
		"SELECT id, run_key, operation, started_at, finished_at, status FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*pbak.Run
	for rows.Next() {
		var (
			r        pbak.Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.RunKey, &r.Operation, &r.StartedAt, &finished, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// FindRunByKey returns the run with the given key, or nil if there is none.
func (s *SQLiteDatabase) FindRunByKey(runKey string) (*pbak.Run, error) {
	var (
		r        pbak.Run
		finished sql.NullTime
	)
	err := s.db.QueryRow(
		"SELECT id, run_key, operation, started_at, finished_at, status FROM runs WHERE run_key = ?",
		runKey,
	).Scan(&r.ID, &r.RunKey, &r.Operation, &r.StartedAt, &finished, &r.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding run %s: %w", runKey, err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// Stage results

func (s *SQLiteDatabase) RecordStage(runID int64, stage pbak.StageResult) error {
	_, err := s.db.Exec(
		`INSERT INTO stage_results (run_id, stage, outcome, files, bytes, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, stage.Stage, string(stage.Outcome), stage.Files, stage.Bytes, stage.Detail, stage.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording stage %s: %w", stage.Stage, err)
	}
	return nil
}

// ListStages returns the stage results of a run in the order they were recorded.
func (s *SQLiteDatabase) ListStages(runID int64) ([]*pbak.StageResult, error) {
	rows, err := s.db.Query(
		`SELECT stage, outcome, files, bytes, detail, recorded_at
		 FROM stage_results WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	defer rows.Close()

	var stages []*pbak.StageResult
	for rows.Next() {
		var (
			st      pbak.StageResult
			outcome string
		)
		if err := rows.Scan(&st.Stage, &outcome, &st.Files, &st.Bytes, &st.Detail, &st.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		st.Outcome = pbak.StageOutcome(outcome)
		stages = append(stages, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	return stages, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// SchemaStatus reports the schema version of the database.
func (s *SQLiteDatabase) SchemaStatus() (migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist yet.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
