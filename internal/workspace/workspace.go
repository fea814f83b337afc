// Package workspace manages the directories a release build runs in.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
)

// Manager owns one workspace directory. An ephemeral manager stamps a fresh
// directory per Create and removes it on Cleanup; a persistent manager pins a
// fixed directory and keeps it across runs so checkouts can be reused.
type Manager struct {
	baseDir    string
	dir        string
	persistent bool
}

// NewManager returns an ephemeral manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewPersistentManager returns a manager pinned to baseDir/name. Cleanup
// leaves the directory in place.
func NewPersistentManager(baseDir, name string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if name == "" {
		name = "working"
	}
	return &Manager{
		baseDir:    baseDir,
		dir:        filepath.Join(baseDir, name),
		persistent: true,
	}
}

// Create makes the workspace directory. Persistent managers reuse the pinned
// path; ephemeral managers get a new timestamped one.
func (m *Manager) Create() error {
	if !m.persistent {
		m.dir = filepath.Join(m.baseDir, fmt.Sprintf("pkgship-%s", time.Now().Format("20060102-150405")))
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return ferrors.FileSystemError("could not create workspace directory").
			WithContext("path", m.dir).
			WithCause(err).
			Build()
	}
	if m.persistent {
		slog.Info("Using persistent workspace", logfields.Path(m.dir))
	} else {
		slog.Info("Created workspace", logfields.Path(m.dir))
	}
	return nil
}

// Path returns the workspace directory, empty until Create has run for
// ephemeral managers.
func (m *Manager) Path() string {
	return m.dir
}

// Cleanup removes an ephemeral workspace. Persistent workspaces survive so
// the next release can update the checkout instead of re-cloning.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if m.persistent {
		slog.Debug("Keeping persistent workspace", logfields.Path(m.dir))
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return ferrors.FileSystemError("could not remove workspace directory").
			WithContext("path", m.dir).
			WithCause(err).
			Build()
	}
	slog.Info("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}

// CreateSubdir makes a directory under the workspace, typically one per
// release so concurrent builds stay apart.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.dir == "" {
		return "", ferrors.FileSystemError("workspace not created").Build()
	}
	subdir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", ferrors.FileSystemError("could not create workspace subdirectory").
			WithContext("path", subdir).
			WithCause(err).
			Build()
	}
	return subdir, nil
}
