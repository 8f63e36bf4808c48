package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"pbak/internal/config"
	"pbak/internal/database"
	"pbak/internal/device"
	"pbak/internal/fs"
	"pbak/internal/pbak"
	"pbak/internal/preview"
	"pbak/internal/shell"
	"pbak/internal/syncer"
	"pbak/internal/volume"
)

// Options tune how the app is constructed.
type Options struct {
	// Verbose forces debug logging regardless of log_level.
	Verbose bool
	// Stderr receives the log stream in addition to the log file. Defaults to os.Stderr.
	Stderr io.Writer
}

// PbakApp is the application layer between the CLI and BackupService.
// It constructs all dependencies from config and manages the database and
// log file lifecycle on Close.
type PbakApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	runner    pbak.CommandRunner
	device    *device.Client
	volumes   *volume.Manager
	veracrypt *volume.VeraCrypt
	waitOpts  volume.WaitOptions
	previews  *preview.Generator
	service   *pbak.BackupService
	logger    pbak.Logger
	runKey    string
	logFile   *os.File
}

// NewPbakApp creates a fully wired PbakApp from the given config.
// The caller must call Close when done.
func NewPbakApp(cfg *config.Config, opts Options) (*PbakApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	level := parseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	runKey := pbak.UUIDGenerator{}.New()
	slogger, logFile, err := newLogger(cfg.LogDir, runKey[:8], level, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	a := &PbakApp{
		cfg:     cfg,
		db:      db,
		runner:  shell.NewExecRunner(logger),
		logger:  logger,
		runKey:  runKey,
		logFile: logFile,
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *PbakApp) wire() error {
	cfg := a.cfg
	plan := pbak.BackupPlan{
		SourcePath:    cfg.Source.Path,
		UnmountSource: cfg.Source.UnmountAfterSync,
		Primary:       syncPairs(cfg.Primary),
		VolumePairs:   syncPairs(cfg.Volume.Sync),
	}

	var retriever pbak.DeviceRetriever
	if cfg.Device.Enabled {
		client, err := device.NewClientFromConfig(cfg.Device, a.runner, a.logger)
		if err != nil {
			return fmt.Errorf("creating device client: %w", err)
		}
		a.device = client
		retriever = client
		plan.RetrieveDir = cfg.Device.Destination
		if plan.RetrieveDir == "" {
			plan.RetrieveDir = cfg.Source.Path
		}
	}

	poll, err := cfg.Volume.Poll()
	if err != nil {
		return err
	}
	a.waitOpts = volume.WaitOptions{MaxAttempts: cfg.Volume.MaxAttempts, PollInterval: poll}
	inUse, err := volume.NewInUseCheckerFromConfig(cfg.Volume, a.runner)
	if err != nil {
		return fmt.Errorf("creating in-use checker: %w", err)
	}
	a.volumes = volume.NewManager(volume.SystemMountTable{}, inUse, a.waitOpts, a.logger)
	a.veracrypt = volume.NewVeraCryptFromConfig(cfg.Volume, a.runner)
	if cfg.VolumeEnabled() {
		plan.Volume = &pbak.Volume{
			ContainerPath:   cfg.Volume.ContainerPath,
			MountPoint:      cfg.Volume.MountPoint,
			KeyfilePath:     cfg.Volume.KeyfilePath,
			UnmountExternal: cfg.Volume.UnmountExternal,
		}
	}

	var previews pbak.PreviewGenerator
	if cfg.Previews.Enabled {
		a.previews = preview.NewGeneratorFromConfig(cfg.Previews, a.runner, a.logger, pbak.RealClock{})
		previews = a.previews
	}

	a.service = pbak.NewBackupService(
		plan,
		retriever,
		syncer.New(fs.NewOSFilesystemManager(), a.logger),
		a.volumes,
		a.veracrypt,
		volume.NewSystemUnmount(a.runner),
		previews,
		a.db,
		a.logger,
		pbak.RealClock{},
		&sessionIDs{first: a.runKey},
	)
	return nil
}

func syncPairs(cfgs []config.SyncPairConfig) []pbak.SyncPair {
	pairs := make([]pbak.SyncPair, 0, len(cfgs))
	for _, c := range cfgs {
		pairs = append(pairs, pbak.SyncPair{Source: c.Source, Destination: c.Destination, Exclude: c.Exclude})
	}
	return pairs
}

// sessionIDs hands out the key already used in the log stream first so log
// lines and the run record share it.
type sessionIDs struct {
	first string
	used  bool
	next  pbak.UUIDGenerator
}

func (g *sessionIDs) New() string {
	if !g.used {
		g.used = true
		return g.first
	}
	return g.next.New()
}

// Config returns the config the app was built from.
func (a *PbakApp) Config() *config.Config {
	return a.cfg
}

// Run executes op and returns the run report.
func (a *PbakApp) Run(ctx context.Context, op *Operation, progress pbak.ProgressFunc) (*pbak.RunReport, error) {
	return a.service.Run(ctx, op.Options(progress))
}

// DeviceList returns the current listing of the capture device.
func (a *PbakApp) DeviceList(ctx context.Context) (*device.Listing, error) {
	if a.device == nil {
		return nil, errors.New("device retrieval is disabled in the config")
	}
	return a.device.List(ctx)
}

// DeviceRange computes the retrieval directive without transferring anything.
func (a *PbakApp) DeviceRange(ctx context.Context) (pbak.RetrievalDirective, *device.Listing, error) {
	if a.device == nil {
		return pbak.RetrievalDirective{}, nil, errors.New("device retrieval is disabled in the config")
	}
	dir := a.cfg.Device.Destination
	if dir == "" {
		dir = a.cfg.Source.Path
	}
	return a.device.Range(ctx, dir)
}

// VolumeStatus describes the configured volume as it is right now.
type VolumeStatus struct {
	ContainerPath    string
	ContainerPresent bool
	MountPoint       string
	Partition        *volume.Partition // nil when not mounted
	UsedBytes        uint64
	TotalBytes       uint64
	InUse            bool
}

// VolumeStatus reads the mount table and, when mounted, usage and in-use state.
func (a *PbakApp) VolumeStatus(ctx context.Context) (*VolumeStatus, error) {
	if !a.cfg.VolumeEnabled() {
		return nil, errors.New("no volume configured")
	}
	st := &VolumeStatus{
		ContainerPath: a.cfg.Volume.ContainerPath,
		MountPoint:    a.cfg.Volume.MountPoint,
	}
	if _, err := os.Stat(st.ContainerPath); err == nil {
		st.ContainerPresent = true
	}

	part, err := volume.SystemMountTable{}.Lookup(ctx, st.MountPoint)
	if err != nil {
		return nil, err
	}
	st.Partition = part
	if part == nil {
		return st, nil
	}

	if st.UsedBytes, st.TotalBytes, err = volume.Usage(ctx, st.MountPoint); err != nil {
		a.logger.Warn("could not read volume usage", "mount_point", st.MountPoint, "error", err)
	}
	checker, err := volume.NewInUseCheckerFromConfig(a.cfg.Volume, a.runner)
	if err != nil {
		return nil, err
	}
	if st.InUse, err = checker.InUse(ctx, st.MountPoint); err != nil {
		a.logger.Warn("in-use check failed", "mount_point", st.MountPoint, "error", err)
	}
	return st, nil
}

// UnmountVolume runs the guarded unmount on the configured volume. An
// unmounted volume is reported as such without invoking veracrypt.
func (a *PbakApp) UnmountVolume(ctx context.Context) (*pbak.UnmountResult, error) {
	if !a.cfg.VolumeEnabled() {
		return nil, errors.New("no volume configured")
	}
	mp := a.cfg.Volume.MountPoint
	mounted, err := a.volumes.IsMounted(ctx, mp)
	if err != nil {
		return nil, err
	}
	if !mounted {
		return &pbak.UnmountResult{State: pbak.Unmounted}, nil
	}
	return a.volumes.WaitAndUnmount(ctx, mp, a.veracrypt.Unmount, a.waitOpts)
}

// OpenPreview shows path in the configured viewer.
func (a *PbakApp) OpenPreview(ctx context.Context, path string) error {
	if a.previews == nil {
		return errors.New("previews are disabled in the config")
	}
	return a.previews.Open(ctx, path)
}

// RunHistoryEntry is a run together with its stage results.
type RunHistoryEntry struct {
	Run    *pbak.Run
	Stages []*pbak.StageResult
}

// History returns the most recent runs, newest first.
func (a *PbakApp) History(limit int) ([]*RunHistoryEntry, error) {
	runs, err := a.db.ListRuns(limit)
	if err != nil {
		return nil, err
	}
	entries := make([]*RunHistoryEntry, 0, len(runs))
	for _, r := range runs {
		stages, err := a.db.ListStages(r.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &RunHistoryEntry{Run: r, Stages: stages})
	}
	return entries, nil
}

// ExportHistory writes a copy of the run history database to destPath.
func (a *PbakApp) ExportHistory(destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%s already exists", destPath)
	}
	return a.db.BackupTo(destPath)
}

// Close closes the database and the log file.
func (a *PbakApp) Close() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
