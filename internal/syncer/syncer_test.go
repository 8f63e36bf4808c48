package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"pbak/internal/fs"
	"pbak/internal/pbak"
	"pbak/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cardLayout builds a source tree shaped like a camera card.
func cardLayout(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "card")
	writeFile(t, filepath.Join(src, "DCIM", "100NIKON", "DSC_0001.NEF"), "nef1")
	writeFile(t, filepath.Join(src, "DCIM", "100NIKON", "DSC_0001.JPG"), "jpg1")
	writeFile(t, filepath.Join(src, "DCIM", "100NIKON", "DSC_0002.NEF"), "nef2")
	writeFile(t, filepath.Join(src, "DCIM", "100NIKON", "DSC_0002.JPG"), "jpg2")
	writeFile(t, filepath.Join(src, "DCIM", "101NIKON", "MOV_0003.MOV"), "mov3")
	writeFile(t, filepath.Join(src, "DCIM", "101NIKON", "MOV_0003.xmp"), "sidecar")
	return src
}

func cardPairs(src, out string) []pbak.SyncPair {
	return []pbak.SyncPair{
		{Source: filepath.Join(src, "**", "*{NEF,MOV}"), Destination: filepath.Join(out, "raw")},
		{Source: filepath.Join(src, "**", "*JPG"), Destination: filepath.Join(out, "jpg")},
	}
}

func TestSync_CopiesNewFilesPerPair(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	var progress []int
	report, err := s.Sync(context.Background(), cardPairs(src, out), func(_ pbak.SyncPair, done, total int) {
		progress = append(progress, done*10+total)
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if got, want := listNames(t, filepath.Join(out, "raw")), []string{"DSC_0001.NEF", "DSC_0002.NEF", "MOV_0003.MOV"}; !equalStrings(got, want) {
		t.Errorf("raw destination = %v, want %v", got, want)
	}
	if got, want := listNames(t, filepath.Join(out, "jpg")), []string{"DSC_0001.JPG", "DSC_0002.JPG"}; !equalStrings(got, want) {
		t.Errorf("jpg destination = %v, want %v", got, want)
	}
	if report.Copied() != 5 {
		t.Errorf("Copied() = %d, want 5", report.Copied())
	}
	if report.Bytes() != 20 {
		t.Errorf("Bytes() = %d, want 20", report.Bytes())
	}
	// 3 files in the first pair, then 2 in the second.
	wantProgress := []int{13, 23, 33, 12, 22}
	if len(progress) != len(wantProgress) {
		t.Fatalf("progress calls = %v, want %v", progress, wantProgress)
	}
	for i := range wantProgress {
		if progress[i] != wantProgress[i] {
			t.Errorf("progress[%d] = %d, want %d", i, progress[i], wantProgress[i])
		}
	}
}

func TestSync_Idempotent(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())
	pairs := cardPairs(src, out)

	if _, err := s.Sync(context.Background(), pairs, nil); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	report, err := s.Sync(context.Background(), pairs, nil)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if report.Copied() != 0 {
		t.Errorf("second Sync() copied %d files, want 0", report.Copied())
	}
}

func TestSync_PresenceIsByNameOnly(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	// A stale, different file under the same name is left alone.
	writeFile(t, filepath.Join(out, "raw", "DSC_0001.NEF"), "something else entirely")

	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())
	report, err := s.Sync(context.Background(), cardPairs(src, out)[:1], nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Copied() != 2 {
		t.Errorf("Copied() = %d, want 2", report.Copied())
	}
	data, err := os.ReadFile(filepath.Join(out, "raw", "DSC_0001.NEF"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "something else entirely" {
		t.Errorf("existing file was overwritten: %q", data)
	}
}

func TestSync_Completeness(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())
	pairs := cardPairs(src, out)

	if _, err := s.Sync(context.Background(), pairs, nil); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	for _, p := range pairs {
		sources, err := fsmgr.Glob(p.Source)
		if err != nil {
			t.Fatalf("Glob() error = %v", err)
		}
		for _, src := range sources {
			if _, err := os.Stat(filepath.Join(p.Destination, filepath.Base(src))); err != nil {
				t.Errorf("%s missing from %s after sync", filepath.Base(src), p.Destination)
			}
		}
	}
}

func TestSync_CreatesMissingDestination(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	dest := filepath.Join(t.TempDir(), "a", "b", "c")
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	pairs := []pbak.SyncPair{{Source: filepath.Join(src, "**", "*.MOV"), Destination: dest}}
	if _, err := s.Sync(context.Background(), pairs, nil); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got := listNames(t, dest); !equalStrings(got, []string{"MOV_0003.MOV"}) {
		t.Errorf("destination = %v, want [MOV_0003.MOV]", got)
	}
}

func TestSync_EmptySourceSelection(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "dest")
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	pairs := []pbak.SyncPair{{Source: filepath.Join(t.TempDir(), "**", "*.NEF"), Destination: dest}}
	report, err := s.Sync(context.Background(), pairs, nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Copied() != 0 {
		t.Errorf("Copied() = %d, want 0", report.Copied())
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("destination not created: %v", err)
	}
}

func TestSync_Exclude(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	pairs := []pbak.SyncPair{{
		Source:      filepath.Join(src, "**", "*"),
		Destination: out,
		Exclude:     []string{"*.xmp", "DCIM/100NIKON/*.JPG"},
	}}
	if _, err := s.Sync(context.Background(), pairs, nil); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	want := []string{"DSC_0001.NEF", "DSC_0002.NEF", "MOV_0003.MOV"}
	if got := listNames(t, out); !equalStrings(got, want) {
		t.Errorf("destination = %v, want %v", got, want)
	}
}

func TestSync_SkipsSymlinkedSources(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	if err := os.Symlink(filepath.Join(src, "DCIM", "100NIKON", "DSC_0001.NEF"), filepath.Join(src, "LINK.NEF")); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	pairs := []pbak.SyncPair{{Source: filepath.Join(src, "*.NEF"), Destination: out}}
	report, err := s.Sync(context.Background(), pairs, nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Copied() != 0 {
		t.Errorf("Copied() = %d, want 0 (symlinks skipped)", report.Copied())
	}
}

func TestSync_DuplicateBasenamesCollapse(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "DSC_0001.JPG"), "first")
	writeFile(t, filepath.Join(src, "b", "DSC_0001.JPG"), "second")
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	pairs := []pbak.SyncPair{{Source: filepath.Join(src, "**", "*.JPG"), Destination: out}}
	report, err := s.Sync(context.Background(), pairs, nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Copied() != 1 {
		t.Fatalf("Copied() = %d, want 1", report.Copied())
	}
	data, err := os.ReadFile(filepath.Join(out, "DSC_0001.JPG"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("copied content = %q, want %q", data, "first")
	}
}

func TestSync_CopyFailureAbortsOnlyThatPair(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	faulty := testutil.NewFaultyFilesystem(fs.NewOSFilesystemManager(), "DSC_0002.NEF")
	s := New(faulty, pbak.NewNopLogger())

	report, err := s.Sync(context.Background(), cardPairs(src, out), nil)
	if err == nil {
		t.Fatal("Sync() error = nil, want copy error")
	}
	var copyErr *pbak.CopyError
	if !errors.As(err, &copyErr) {
		t.Fatalf("Sync() error = %v, want *pbak.CopyError", err)
	}
	if !errors.Is(err, testutil.ErrInjected) {
		t.Errorf("Sync() error does not wrap the copy failure: %v", err)
	}

	// DSC_0001.NEF was copied before the failure; MOV_0003.MOV was never attempted.
	if got := listNames(t, filepath.Join(out, "raw")); !equalStrings(got, []string{"DSC_0001.NEF"}) {
		t.Errorf("raw destination = %v, want [DSC_0001.NEF]", got)
	}
	for _, c := range faulty.Copies() {
		if filepath.Base(c) == "MOV_0003.MOV" {
			t.Error("copy continued within the failed pair")
		}
	}
	// The JPG pair is unaffected.
	if got := listNames(t, filepath.Join(out, "jpg")); !equalStrings(got, []string{"DSC_0001.JPG", "DSC_0002.JPG"}) {
		t.Errorf("jpg destination = %v, want both JPGs", got)
	}
	if len(report.Pairs) != 2 || report.Pairs[0].Err == nil || report.Pairs[1].Err != nil {
		t.Errorf("pair errors = %v / %v, want error only in first pair", report.Pairs[0].Err, report.Pairs[1].Err)
	}
}

func TestSync_CancelledContext(t *testing.T) {
	t.Parallel()
	src := cardLayout(t)
	out := t.TempDir()
	s := New(fs.NewOSFilesystemManager(), pbak.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := s.Sync(ctx, cardPairs(src, out), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sync() error = %v, want context.Canceled", err)
	}
	if report.Copied() != 0 {
		t.Errorf("Copied() = %d, want 0", report.Copied())
	}
}
