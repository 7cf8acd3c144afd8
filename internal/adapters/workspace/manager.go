// Package workspace owns the upload root and hands out isolated per-request
// build directories under it.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/melih/ocomp/internal/core/domain"
	"github.com/melih/ocomp/internal/logfields"
)

const (
	// UploadsDir is the upload root's name inside the config directory.
	UploadsDir = "uploads"

	dirPrefix = "build-"
)

var (
	ErrNotInitialized     = errors.New("upload root is not initialized")
	ErrAlreadyInitialized = errors.New("upload root is already initialized")
)

// Manager implements ports.WorkspaceService. The upload root is written once
// by Init and only read afterwards.
type Manager struct {
	path string

	mu          sync.RWMutex
	initialized bool

	scheduler gocron.Scheduler
}

// NewManager creates a manager for the given upload root. Nothing touches
// the filesystem until Init.
func NewManager(root string) *Manager {
	return &Manager{path: filepath.Clean(root)}
}

// Init clears and recreates the upload root. Workspaces from a previous run
// are discarded.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return ErrAlreadyInitialized
	}
	if err := os.RemoveAll(m.path); err != nil {
		return fmt.Errorf("failed to clear existing upload directory: %w", err)
	}
	if err := os.MkdirAll(m.path, 0o750); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	m.initialized = true
	slog.Info("Upload root ready", logfields.Path(m.path))
	return nil
}

// Root returns the upload root, or ErrNotInitialized before Init succeeded.
func (m *Manager) Root() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return "", ErrNotInitialized
	}
	return m.path, nil
}

// CreateWorkspace makes a new uniquely named directory under the upload
// root. Uniqueness comes from the random identifier; Mkdir (not MkdirAll)
// makes a collision an error instead of a shared directory.
func (m *Manager) CreateWorkspace() (domain.Workspace, error) {
	root, err := m.Root()
	if err != nil {
		return domain.Workspace{}, err
	}

	id := uuid.NewString()
	dir := filepath.Join(root, dirPrefix+id)
	if err := os.Mkdir(dir, 0o750); err != nil {
		return domain.Workspace{}, fmt.Errorf("failed to create build directory: %w", err)
	}

	slog.Debug("Created workspace", logfields.WorkspaceID(id), logfields.Path(dir))
	return domain.Workspace{ID: id, RootPath: dir, CreatedAt: time.Now()}, nil
}

// removeDir deletes dir, which must be a direct child of root.
func removeDir(root, dir string) error {
	if filepath.Dir(filepath.Clean(dir)) != root {
		return fmt.Errorf("workspace %s is not under the upload root", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// Sweep removes workspaces last modified before cutoff and returns how many
// were removed.
func (m *Manager) Sweep(cutoff time.Time) (int, error) {
	root, err := m.Root()
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("failed to list upload directory: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := removeDir(root, filepath.Join(root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// StartRetention schedules a sweep every interval that removes workspaces
// older than retention. A non-positive retention keeps workspaces until the
// next restart.
func (m *Manager) StartRetention(retention, interval time.Duration) error {
	if retention <= 0 {
		return nil
	}
	if _, err := m.Root(); err != nil {
		return err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(m.sweepOlderThan, retention),
		gocron.WithName("workspace-retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule workspace retention: %w", err)
	}
	s.Start()
	m.scheduler = s
	slog.Info("Workspace retention enabled",
		slog.Duration("retention", retention),
		slog.Duration("interval", interval))
	return nil
}

func (m *Manager) sweepOlderThan(retention time.Duration) {
	n, err := m.Sweep(time.Now().Add(-retention))
	if err != nil {
		slog.Error("Workspace sweep failed", logfields.Error(err))
	}
	if n > 0 {
		slog.Info("Removed expired workspaces", slog.Int("count", n))
	}
}

// Stop shuts down the retention scheduler, if any.
func (m *Manager) Stop() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}
