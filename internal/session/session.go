// Package session manages per-request scratch directories.
//
// Every palette request gets its own directory under a common root. Sessions
// are removed explicitly: after their content has been served, when they
// expire, or all at once through Teardown on shutdown. The root itself is
// only removed when the Manager created it.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// ErrNotFound is returned for unknown or malformed session IDs.
var ErrNotFound = errors.New("session not found")

// Session is a scratch directory owned by one request.
type Session struct {
	ID        string
	Dir       string
	CreatedAt time.Time
}

// Manager creates and removes sessions under a root directory.
type Manager struct {
	root     string
	ownsRoot bool
	logger   hclog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager rooted at root, creating the directory if needed.
// An empty root uses a fresh directory under the system temp dir.
// An existing root is shared: only session directories are ever removed from it.
func NewManager(root string, logger hclog.Logger) (*Manager, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	owns := false
	switch info, err := os.Stat(root); {
	case root == "":
		dir, err := os.MkdirTemp("", "feedhue-")
		if err != nil {
			return nil, fmt.Errorf("failed to create scratch root: %w", err)
		}
		root, owns = dir, true
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("scratch root %s is not a directory", root)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create scratch root: %w", err)
		}
		owns = true
	default:
		return nil, fmt.Errorf("failed to access scratch root: %w", err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch root: %w", err)
	}

	return &Manager{
		root:     abs,
		ownsRoot: owns,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Root returns the scratch root directory.
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a new session and its directory.
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.root, id)
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Session{ID: id, Dir: dir, CreatedAt: m.now()}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("session created", "id", id)
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove deletes the session and its directory.
func (m *Manager) Remove(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("failed to remove session %s: %w", id, err)
	}

	m.logger.Debug("session removed", "id", id)
	return nil
}

// Sweep removes sessions created more than maxAge ago and returns how many
// were removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := os.RemoveAll(s.Dir); err != nil {
			m.logger.Warn("failed to remove expired session", "id", s.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		m.logger.Debug("swept expired sessions", "count", len(expired))
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IDs returns the live session IDs, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Teardown removes every live session, and the scratch root when the
// Manager created it. The Manager must not be used afterwards.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	live := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := os.RemoveAll(s.Dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove session %s: %w", s.ID, err))
		}
	}
	if m.ownsRoot && len(errs) == 0 {
		if err := os.RemoveAll(m.root); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove scratch root: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.logger.Debug("scratch storage removed", "root", m.root, "sessions", len(live), "root_removed", m.ownsRoot)
	return nil
}

// ValidateID rejects anything that is not a canonical UUID, which also keeps
// IDs from escaping the scratch root.
func ValidateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	return nil
}
