package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_EphemeralMode(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewManager(tempBase)

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	wsPath := mgr.Path()
	if wsPath == "" {
		t.Fatal("Path() returned empty string")
	}

	if !strings.Contains(filepath.Base(wsPath), "pkgship-") {
		t.Errorf("Expected timestamped directory, got: %s", wsPath)
	}

	if _, err := os.Stat(wsPath); os.IsNotExist(err) {
		t.Errorf("Workspace directory does not exist: %s", wsPath)
	}

	// Cleanup should remove directory
	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("Workspace directory still exists after cleanup: %s", wsPath)
	}
}

func TestManager_PersistentMode(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewPersistentManager(tempBase, "working")

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	wsPath := mgr.Path()
	expectedPath := filepath.Join(tempBase, "working")

	if wsPath != expectedPath {
		t.Errorf("Expected path %s, got: %s", expectedPath, wsPath)
	}

	markerFile := filepath.Join(wsPath, "marker.txt")
	if err := os.WriteFile(markerFile, []byte("persistent"), 0o600); err != nil {
		t.Fatalf("Failed to create marker file: %v", err)
	}

	// Cleanup should NOT remove directory in persistent mode
	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if _, err := os.Stat(markerFile); os.IsNotExist(err) {
		t.Errorf("Marker file was removed from persistent workspace")
	}
}

func TestManager_CreateSubdir(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer func() { _ = mgr.Cleanup() }()

	sub, err := mgr.CreateSubdir("checkout")
	if err != nil {
		t.Fatalf("CreateSubdir() failed: %v", err)
	}
	if filepath.Dir(sub) != mgr.Path() {
		t.Errorf("Subdir %s not inside workspace %s", sub, mgr.Path())
	}
}

func TestManager_CreateSubdirBeforeCreate(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if _, err := mgr.CreateSubdir("x"); err == nil {
		t.Fatal("expected error when workspace not created")
	}
}

func TestManager_DefaultSubdirName(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewPersistentManager(tempBase, "")

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	expectedPath := filepath.Join(tempBase, "working")
	if mgr.Path() != expectedPath {
		t.Errorf("Expected default subdir 'working', got: %s", mgr.Path())
	}
}
