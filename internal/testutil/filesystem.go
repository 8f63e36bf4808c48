package testutil

import (
	"errors"
	"path/filepath"
	"sync"

	"pbak/internal/pbak"
)

// ErrInjected is returned by FaultyFilesystem for scripted failures.
var ErrInjected = errors.New("injected failure")

// FaultyFilesystem wraps a FilesystemManager and fails CopyFile for chosen basenames.
type FaultyFilesystem struct {
	pbak.FilesystemManager

	mu        sync.Mutex
	failNames map[string]bool
	copies    []string
}

var _ pbak.FilesystemManager = (*FaultyFilesystem)(nil)

func NewFaultyFilesystem(inner pbak.FilesystemManager, failNames ...string) *FaultyFilesystem {
	f := &FaultyFilesystem{FilesystemManager: inner, failNames: make(map[string]bool)}
	for _, n := range failNames {
		f.failNames[n] = true
	}
	return f
}

func (f *FaultyFilesystem) CopyFile(src, dst string) (int64, error) {
	f.mu.Lock()
	f.copies = append(f.copies, src)
	fail := f.failNames[filepath.Base(src)]
	f.mu.Unlock()
	if fail {
		return 0, ErrInjected
	}
	return f.FilesystemManager.CopyFile(src, dst)
}

// Copies returns every source passed to CopyFile, including failed ones.
func (f *FaultyFilesystem) Copies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.copies...)
}
