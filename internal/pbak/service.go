package pbak

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Stage names, in run order.
const (
	StageRetrieve      = "retrieve"
	StageSyncPrimary   = "sync"
	StageUnmountSource = "unmount-source"
	StageSyncVolume    = "volume"
	StagePreviews      = "previews"
)

// AllStages is the full backup sequence.
var AllStages = []string{StageRetrieve, StageSyncPrimary, StageUnmountSource, StageSyncVolume, StagePreviews}

// BackupPlan is the resolved configuration of what a run touches.
type BackupPlan struct {
	// SourcePath is the mounted card or directory new files arrive in.
	SourcePath    string
	UnmountSource bool
	// RetrieveDir receives device retrievals. Empty disables retrieval.
	RetrieveDir string
	Primary     []SyncPair
	// Volume is nil when no removable destination is configured.
	Volume      *Volume
	VolumePairs []SyncPair
}

// RunOptions selects the stages of one run.
type RunOptions struct {
	Operation string
	// Stages to run. Nil runs AllStages.
	Stages   []string
	Progress ProgressFunc
}

func (o RunOptions) wants(stage string) bool {
	if o.Stages == nil {
		return true
	}
	for _, s := range o.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// BackupService runs the backup stages in order. Every selected stage is
// attempted even when an earlier one degrades.
type BackupService struct {
	plan            BackupPlan
	device          DeviceRetriever
	syncer          Synchronizer
	volumes         VolumeLifecycle
	mounter         Mounter
	sourceUnmounter Unmounter
	previews        PreviewGenerator
	history         RunHistory
	logger          Logger
	clock           Clock
	idgen           IDGenerator
}

// NewBackupService creates a BackupService. device and previews may be nil
// to disable those stages.
func NewBackupService(plan BackupPlan, device DeviceRetriever, syncer Synchronizer, volumes VolumeLifecycle, mounter Mounter, sourceUnmounter Unmounter, previews PreviewGenerator, history RunHistory, logger Logger, clock Clock, idgen IDGenerator) *BackupService {
	return &BackupService{
		plan:            plan,
		device:          device,
		syncer:          syncer,
		volumes:         volumes,
		mounter:         mounter,
		sourceUnmounter: sourceUnmounter,
		previews:        previews,
		history:         history,
		logger:          logger,
		clock:           clock,
		idgen:           idgen,
	}
}

// Run executes the selected stages and records each one in the run history.
// The returned error is non-nil only when the run could not be recorded.
func (s *BackupService) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	operation := opts.Operation
	if operation == "" {
		operation = "run"
	}

	report := &RunReport{RunKey: s.idgen.New()}
	run, err := s.history.CreateRun(report.RunKey, operation, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	s.logger.Info("run started", "operation", operation, "run", report.RunKey)

	record := func(r StageResult) {
		r.RecordedAt = s.clock.Now()
		report.Stages = append(report.Stages, r)
		if err := s.history.RecordStage(run.ID, r); err != nil {
			s.logger.Warn("failed to record stage", "stage", r.Stage, "error", err)
		}
	}

	if opts.wants(StageRetrieve) {
		record(s.retrieve(ctx))
	}

	sourcePresent := false
	if opts.wants(StageSyncPrimary) {
		var r StageResult
		r, sourcePresent = s.syncPrimary(ctx, opts.Progress)
		record(r)
	}
	if opts.wants(StageUnmountSource) && opts.wants(StageSyncPrimary) {
		record(s.unmountSource(ctx, sourcePresent))
	}

	if opts.wants(StageSyncVolume) {
		record(s.syncVolume(ctx, opts.Progress))
	}

	if opts.wants(StagePreviews) {
		r, pr := s.generatePreviews(ctx)
		report.Preview = pr
		record(r)
	}

	status := report.Status()
	if err := s.history.FinishRun(run.ID, status, s.clock.Now()); err != nil {
		s.logger.Warn("failed to finish run record", "run", report.RunKey, "error", err)
	}
	s.logger.Info("run finished", "run", report.RunKey, "status", status)
	return report, nil
}

func (s *BackupService) retrieve(ctx context.Context) StageResult {
	r := StageResult{Stage: StageRetrieve}
	if s.device == nil || s.plan.RetrieveDir == "" {
		r.Outcome = OutcomeSkipped
		r.Detail = "device retrieval disabled"
		return r
	}
	if _, err := os.Stat(s.plan.RetrieveDir); err != nil {
		r.Outcome = OutcomeSkipped
		r.Detail = fmt.Sprintf("retrieval directory %s not available", s.plan.RetrieveDir)
		s.logger.Info("skipping device retrieval", "dir", s.plan.RetrieveDir, "error", err)
		return r
	}

	res, err := s.device.Retrieve(ctx, s.plan.RetrieveDir)
	switch {
	case err == nil:
		r.Outcome = OutcomeOK
		r.Files = res.Directive.End() - res.Directive.Start + 1
		r.Detail = "retrieved " + res.Directive.Range()
		s.logger.Info("retrieved from device", "range", res.Directive.Range(), "listed", res.Listed)
	case errors.Is(err, ErrNoNewFiles):
		r.Outcome = OutcomeSkipped
		r.Detail = err.Error()
		s.logger.Info("no new files on device")
	default:
		r.Outcome = OutcomeWarning
		r.Detail = err.Error()
		s.logger.Warn("device retrieval failed", "error", err)
	}
	return r
}

func (s *BackupService) syncPrimary(ctx context.Context, progress ProgressFunc) (StageResult, bool) {
	r := StageResult{Stage: StageSyncPrimary}
	if _, err := os.Stat(s.plan.SourcePath); err != nil {
		r.Outcome = OutcomeSkipped
		r.Detail = fmt.Sprintf("%s not mounted, not backing up", s.plan.SourcePath)
		s.logger.Warn("source not mounted, not backing up", "source", s.plan.SourcePath)
		return r, false
	}

	s.syncStage(ctx, &r, s.plan.Primary, progress)
	return r, true
}

func (s *BackupService) unmountSource(ctx context.Context, sourcePresent bool) StageResult {
	r := StageResult{Stage: StageUnmountSource}
	if !sourcePresent || !s.plan.UnmountSource || s.sourceUnmounter == nil {
		r.Outcome = OutcomeSkipped
		return r
	}
	if err := s.sourceUnmounter.Unmount(ctx, s.plan.SourcePath); err != nil {
		r.Outcome = OutcomeWarning
		r.Detail = err.Error()
		s.logger.Warn("failed to unmount source", "source", s.plan.SourcePath, "error", err)
		return r
	}
	r.Outcome = OutcomeOK
	s.logger.Info("unmounted source", "source", s.plan.SourcePath)
	return r
}

func (s *BackupService) syncVolume(ctx context.Context, progress ProgressFunc) StageResult {
	r := StageResult{Stage: StageSyncVolume}
	if s.plan.Volume == nil || s.volumes == nil {
		r.Outcome = OutcomeSkipped
		r.Detail = "no volume configured"
		return r
	}

	var inner StageResult
	lr, err := s.volumes.WithMountedVolume(ctx, *s.plan.Volume, s.mounter, func(ctx context.Context) error {
		inner = StageResult{Stage: StageSyncVolume}
		s.syncStage(ctx, &inner, s.plan.VolumePairs, progress)
		if inner.Outcome == OutcomeOK {
			return nil
		}
		return errors.New(inner.Detail)
	})
	if errors.Is(err, ErrVolumeAbsent) {
		r.Outcome = OutcomeSkipped
		r.Detail = err.Error()
		s.logger.Info("volume container absent, skipping", "container", s.plan.Volume.ContainerPath)
		return r
	}

	r = inner
	r.Stage = StageSyncVolume
	if r.Outcome == "" {
		r.Outcome = OutcomeOK
	}

	var problems []string
	if r.Outcome != OutcomeOK && r.Detail != "" {
		problems = append(problems, r.Detail)
	}
	if lr != nil && lr.MountErr != nil {
		problems = append(problems, lr.MountErr.Error())
	}
	if lr != nil && lr.UnmountErr != nil {
		problems = append(problems, lr.UnmountErr.Error())
		if errors.Is(lr.UnmountErr, ErrStillMounted) {
			s.logger.Warn("volume remains mounted", "mount_point", s.plan.Volume.MountPoint)
		}
	}
	if lr == nil && err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		if r.Outcome != OutcomeError {
			r.Outcome = OutcomeWarning
		}
		r.Detail = strings.Join(problems, "; ")
	}
	return r
}

// syncStage runs one Sync call and folds the outcome into r.
func (s *BackupService) syncStage(ctx context.Context, r *StageResult, pairs []SyncPair, progress ProgressFunc) {
	report, err := s.syncer.Sync(ctx, pairs, progress)
	r.Files = report.Copied()
	r.Bytes = report.Bytes()
	switch {
	case err == nil:
		r.Outcome = OutcomeOK
		s.logger.Info("sync complete", "stage", r.Stage, "copied", r.Files, "bytes", r.Bytes)
	case ctx.Err() != nil:
		r.Outcome = OutcomeError
		r.Detail = err.Error()
		s.logger.Error("sync interrupted", "stage", r.Stage, "error", err)
	default:
		r.Outcome = OutcomeWarning
		r.Detail = err.Error()
		s.logger.Warn("sync finished with errors", "stage", r.Stage, "copied", r.Files, "error", err)
	}
}

func (s *BackupService) generatePreviews(ctx context.Context) (StageResult, *PreviewReport) {
	r := StageResult{Stage: StagePreviews}
	if s.previews == nil {
		r.Outcome = OutcomeSkipped
		r.Detail = "previews disabled"
		return r, nil
	}

	pr, err := s.previews.Generate(ctx)
	if err != nil {
		r.Outcome = OutcomeWarning
		r.Detail = err.Error()
		s.logger.Warn("preview generation failed", "error", err)
		return r, pr
	}
	r.Files = len(pr.Generated)
	r.Outcome = OutcomeOK
	if len(pr.Failed) > 0 {
		r.Outcome = OutcomeWarning
		r.Detail = fmt.Sprintf("%d previews failed", len(pr.Failed))
	}
	return r, pr
}
