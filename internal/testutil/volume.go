package testutil

import (
	"context"
	"sync"

	"pbak/internal/pbak"
)

// FakeMountTable is an in-memory mount table.
type FakeMountTable struct {
	mu      sync.Mutex
	mounted map[string]bool
	Err     error
}

var _ pbak.MountTable = (*FakeMountTable)(nil)

func NewFakeMountTable(mounted ...string) *FakeMountTable {
	t := &FakeMountTable{mounted: make(map[string]bool)}
	for _, m := range mounted {
		t.mounted[m] = true
	}
	return t
}

func (t *FakeMountTable) IsMounted(_ context.Context, mountPoint string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return false, t.Err
	}
	return t.mounted[mountPoint], nil
}

// Set marks mountPoint as mounted or not.
func (t *FakeMountTable) Set(mountPoint string, mounted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mounted[mountPoint] = mounted
}

// ScriptedInUse answers InUse from a script of results. Once the script is
// exhausted the last entry repeats; an empty script always reports idle.
type ScriptedInUse struct {
	mu     sync.Mutex
	script []bool
	errs   map[int]error
	calls  int
}

var _ pbak.InUseChecker = (*ScriptedInUse)(nil)

func NewScriptedInUse(script ...bool) *ScriptedInUse {
	return &ScriptedInUse{script: script, errs: make(map[int]error)}
}

// FailOn makes the n-th check (1-based) return err.
func (s *ScriptedInUse) FailOn(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[n] = err
}

func (s *ScriptedInUse) InUse(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[s.calls]; err != nil {
		return false, err
	}
	if len(s.script) == 0 {
		return false, nil
	}
	i := s.calls - 1
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i], nil
}

// Calls returns the number of checks performed.
func (s *ScriptedInUse) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MockMounter records mount and unmount calls and updates a FakeMountTable.
type MockMounter struct {
	mu         sync.Mutex
	table      *FakeMountTable
	MountErr   error
	UnmountErr error
	mounts     []string
	unmounts   []string
}

var _ pbak.Mounter = (*MockMounter)(nil)

func NewMockMounter(table *FakeMountTable) *MockMounter {
	return &MockMounter{table: table}
}

func (m *MockMounter) Mount(_ context.Context, vol pbak.Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounts = append(m.mounts, vol.MountPoint)
	if m.MountErr != nil {
		return m.MountErr
	}
	if m.table != nil {
		m.table.Set(vol.MountPoint, true)
	}
	return nil
}

func (m *MockMounter) Unmount(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmounts = append(m.unmounts, path)
	if m.UnmountErr != nil {
		return m.UnmountErr
	}
	if m.table != nil {
		m.table.Set(path, false)
	}
	return nil
}

func (m *MockMounter) Mounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.mounts...)
}

func (m *MockMounter) Unmounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unmounts...)
}
