// Package syncer copies files that are missing from backup destinations.
//
// A file counts as already backed up when an entry with the same basename
// exists in the destination directory. Contents, sizes and timestamps are
// never compared, and no index is persisted between runs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"pbak/internal/fs"
	"pbak/internal/pbak"
)

// Synchronizer implements pbak.Synchronizer over a FilesystemManager.
type Synchronizer struct {
	fsmgr  pbak.FilesystemManager
	logger pbak.Logger
}

var _ pbak.Synchronizer = (*Synchronizer)(nil)

// New creates a Synchronizer.
func New(fsmgr pbak.FilesystemManager, logger pbak.Logger) *Synchronizer {
	return &Synchronizer{fsmgr: fsmgr, logger: logger}
}

// Sync processes pairs sequentially. A failure inside one pair stops that
// pair only; the returned error joins the failures of all pairs and the
// report is always non-nil.
func (s *Synchronizer) Sync(ctx context.Context, pairs []pbak.SyncPair, progress pbak.ProgressFunc) (*pbak.SyncReport, error) {
	report := &pbak.SyncReport{}
	var errs []error
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res := s.syncPair(ctx, pair, progress)
		report.Pairs = append(report.Pairs, res)
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair, res.Err))
		}
	}
	return report, errors.Join(errs...)
}

// NewFiles returns the sources of pair whose basenames are absent from the
// destination. When two sources share a basename only the first is kept.
func (s *Synchronizer) NewFiles(pair pbak.SyncPair) ([]string, error) {
	sources, err := s.fsmgr.Glob(pair.Source)
	if err != nil {
		return nil, err
	}

	matcher := fs.NewIgnoreMatcher(pair.Exclude)
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pair.Source))
	base = filepath.FromSlash(base)
	seen := make(map[string]struct{}, len(sources))
	var fresh []string
	for _, src := range sources {
		rel, err := filepath.Rel(base, src)
		if err != nil {
			rel = filepath.Base(src)
		}
		if matcher.Match(rel) {
			continue
		}

		name := filepath.Base(src)
		if _, dup := seen[name]; dup {
			s.logger.Debug("skipping duplicate basename", "file", src)
			continue
		}
		seen[name] = struct{}{}

		exists, err := s.fsmgr.Exists(filepath.Join(pair.Destination, name))
		if err != nil {
			return nil, err
		}
		if !exists {
			fresh = append(fresh, src)
		}
	}
	return fresh, nil
}

func (s *Synchronizer) syncPair(ctx context.Context, pair pbak.SyncPair, progress pbak.ProgressFunc) *pbak.PairResult {
	res := &pbak.PairResult{Pair: pair}

	if err := s.fsmgr.EnsureDir(pair.Destination); err != nil {
		res.Err = err
		return res
	}

	fresh, err := s.NewFiles(pair)
	if err != nil {
		res.Err = err
		return res
	}
	res.Candidates = len(fresh)
	s.logger.Info("syncing", "source", pair.Source, "destination", pair.Destination, "new", len(fresh))

	for i, src := range fresh {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		dst := filepath.Join(pair.Destination, filepath.Base(src))
		n, err := s.fsmgr.CopyFile(src, dst)
		if err != nil {
			res.Err = &pbak.CopyError{Source: src, Destination: dst, Err: err}
			s.logger.Warn("copy failed, skipping rest of pair", "source", src, "error", err)
			return res
		}
		res.Copied = append(res.Copied, dst)
		res.Bytes += n
		s.logger.Debug("copied", "source", src, "destination", dst, "bytes", n)
		if progress != nil {
			progress(pair, i+1, len(fresh))
		}
	}
	return res
}
