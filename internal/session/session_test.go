package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "scratch"), nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if info, err := os.Stat(s.Dir); err != nil || !info.IsDir() {
		t.Fatalf("session dir %s not created: %v", s.Dir, err)
	}
	if filepath.Dir(s.Dir) != m.Root() {
		t.Errorf("session dir %s is not under %s", s.Dir, m.Root())
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Errorf("Get() returned a different session")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestRemove(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := m.Remove(s.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
		t.Errorf("session dir still exists: %v", err)
	}
	if err := m.Remove(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestSweep(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	old, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	now = now.Add(time.Hour)
	fresh, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if n := m.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, err := m.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old session still present")
	}
	if _, err := os.Stat(old.Dir); !os.IsNotExist(err) {
		t.Errorf("old session dir still exists")
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
}

func TestTeardown(t *testing.T) {
	m := newTestManager(t)
	for range 3 {
		if _, err := m.Create(); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := m.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if _, err := os.Stat(m.Root()); !os.IsNotExist(err) {
		t.Errorf("scratch root still exists: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after Teardown", m.Len())
	}
}

func TestTeardownKeepsExistingRoot(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(notes, []byte("keep me"), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(root, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := m.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if _, err := os.Stat(notes); err != nil {
		t.Errorf("file not created by the manager was removed: %v", err)
	}
	if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
		t.Errorf("session directory still exists: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("existing root removed: %v", err)
	}
}

func TestNewManagerRootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(file, nil); err == nil {
		t.Error("expected error for a file root")
	}
}

func TestNewManagerTempRoot(t *testing.T) {
	m, err := NewManager("", nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer func() { _ = m.Teardown() }()

	if _, err := os.Stat(m.Root()); err != nil {
		t.Errorf("temp root not created: %v", err)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "canonical", id: "0b8f2f8e-9a4c-4c55-9d1e-6f5a0c4f0e11"},
		{name: "empty", id: "", wantErr: true},
		{name: "traversal", id: "../etc", wantErr: true},
		{name: "upper case", id: "0B8F2F8E-9A4C-4C55-9D1E-6F5A0C4F0E11", wantErr: true},
		{name: "braced", id: "{0b8f2f8e-9a4c-4c55-9d1e-6f5a0c4f0e11}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				t.Errorf("ValidateID(%q) error = %v, want ErrNotFound", tt.id, err)
			}
		})
	}
}
