package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	"git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/storage"
)

func writeDist(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("dist content"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunPublishUploadsToIndex(t *testing.T) {
	distDir := t.TempDir()
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz")
	writeDist(t, distDir, "pyerrors-2.11.1-py3-none-any.whl")

	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("name"); got != "pyerrors" {
			t.Errorf("expected name pyerrors, got %q", got)
		}
		uploads++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Project: config.Project{Name: "pyerrors"},
		Indexes: []config.IndexConfig{{Name: "test", URL: srv.URL, Timeout: "5s"}},
	}

	if err := runPublish(cfg, distDir); err != nil {
		t.Fatalf("runPublish failed: %v", err)
	}
	if uploads != 2 {
		t.Errorf("expected 2 uploads, got %d", uploads)
	}
}

func TestRunPublishRejectsEmptyDir(t *testing.T) {
	cfg := &config.Config{
		Project: config.Project{Name: "pyerrors"},
		Indexes: []config.IndexConfig{{Name: "test", URL: "http://localhost:1", Timeout: "5s"}},
	}
	if err := runPublish(cfg, t.TempDir()); err == nil {
		t.Fatal("expected error for empty dist directory")
	}
}

func TestRunPublishRejectsNameMismatch(t *testing.T) {
	distDir := t.TempDir()
	writeDist(t, distDir, "otherpkg-1.0.0.tar.gz")

	cfg := &config.Config{
		Project: config.Project{Name: "pyerrors"},
		Indexes: []config.IndexConfig{{Name: "test", URL: "http://localhost:1", Timeout: "5s"}},
	}
	if err := runPublish(cfg, distDir); err == nil {
		t.Fatal("expected error for project name mismatch")
	}
}

func TestRunPublishRequiresIndexes(t *testing.T) {
	distDir := t.TempDir()
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz")

	cfg := &config.Config{Project: config.Project{Name: "pyerrors"}}
	if err := runPublish(cfg, distDir); err == nil {
		t.Fatal("expected error when no indexes are configured")
	}
}

// storeBundle builds a store under dataDir and records two distributions as
// the release's dist bundle, the way the store stage does.
func storeBundle(t *testing.T, dataDir, releaseID string) {
	t.Helper()
	store, err := storage.NewFSStore(filepath.Join(dataDir, "store"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	defer store.Close()

	srcDir := t.TempDir()
	ctx := context.Background()
	var hashes []string
	for _, name := range []string{"pyerrors-2.11.1.tar.gz", "pyerrors-2.11.1-py3-none-any.whl"} {
		writeDist(t, srcDir, name)
		dist, err := artifact.ParseFilename(filepath.Join(srcDir, name))
		if err != nil {
			t.Fatalf("ParseFilename %s: %v", name, err)
		}
		hash, err := store.PutDistribution(ctx, dist)
		if err != nil {
			t.Fatalf("PutDistribution %s: %v", name, err)
		}
		hashes = append(hashes, hash)
	}
	if err := store.AddBundleRef(releaseID, storage.DistBundle, hashes); err != nil {
		t.Fatalf("AddBundleRef: %v", err)
	}
}

func TestRunPublishStoredUploadsBundle(t *testing.T) {
	dataDir := t.TempDir()
	storeBundle(t, dataDir, "rel-1")

	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("name"); got != "pyerrors" {
			t.Errorf("expected name pyerrors, got %q", got)
		}
		uploads++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Project: config.Project{Name: "pyerrors"},
		Indexes: []config.IndexConfig{{Name: "test", URL: srv.URL, Timeout: "5s"}},
		Daemon:  &config.DaemonConfig{Storage: config.StorageConfig{DataDir: dataDir}},
	}

	if err := runPublishStored(cfg, "rel-1"); err != nil {
		t.Fatalf("runPublishStored failed: %v", err)
	}
	if uploads != 2 {
		t.Errorf("expected 2 uploads, got %d", uploads)
	}
}

func TestRunPublishStoredUnknownRelease(t *testing.T) {
	dataDir := t.TempDir()
	storeBundle(t, dataDir, "rel-1")

	cfg := &config.Config{
		Project: config.Project{Name: "pyerrors"},
		Indexes: []config.IndexConfig{{Name: "test", URL: "http://localhost:1", Timeout: "5s"}},
		Daemon:  &config.DaemonConfig{Storage: config.StorageConfig{DataDir: dataDir}},
	}
	if err := runPublishStored(cfg, "rel-404"); err == nil {
		t.Fatal("expected error for a release without a stored bundle")
	}
}

func TestRunStatusAgainstAdminAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/status":
			w.Write([]byte(`{"status":"running","project":"pyerrors","uptime":"5m0s","active_jobs":0,"queue_length":0}`))
		case "/api/releases":
			w.Write([]byte(`{"releases":[{"release_id":"rel-1","status":"completed","version":"2.11.1"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	if err := runStatus(srv.URL); err != nil {
		t.Fatalf("runStatus failed: %v", err)
	}
}

func TestRunStatusDaemonUnreachable(t *testing.T) {
	if err := runStatus("http://127.0.0.1:1"); err == nil {
		t.Fatal("expected error when daemon is unreachable")
	}
}
