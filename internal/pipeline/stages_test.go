package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/pkgship/internal/config"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/storage"
)

func testState(t *testing.T, sourceDir string) *State {
	t.Helper()
	cfg := &config.Config{
		Project: config.Project{Name: "pyerrors", URL: "https://example.com/pyerrors.git"},
		Build:   config.BuildConfig{DistDir: "dist"},
	}
	return &State{
		ReleaseID: "rel-test",
		Trigger:   TriggerManual,
		Config:    cfg,
		SourceDir: sourceDir,
	}
}

func writeDist(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestCollectStageGathersDistributions(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz", "sdist bytes")
	writeDist(t, distDir, "pyerrors-2.11.1-py3-none-any.whl", "wheel bytes")

	st := testState(t, sourceDir)
	stage := &CollectStage{}
	if err := stage.Run(context.Background(), st); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	if len(st.Distributions) != 2 {
		t.Fatalf("collected %d distributions, want 2", len(st.Distributions))
	}
	for _, dist := range st.Distributions {
		if dist.SHA256 == "" {
			t.Errorf("distribution %s missing digest", dist.File)
		}
		if dist.Size == 0 {
			t.Errorf("distribution %s missing size", dist.File)
		}
	}
}

func TestCollectStageFailsWhenNoFilesProduced(t *testing.T) {
	sourceDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(sourceDir, "dist"), 0750); err != nil {
		t.Fatal(err)
	}

	st := testState(t, sourceDir)
	err := (&CollectStage{}).Run(context.Background(), st)
	if err == nil {
		t.Fatal("empty dist directory must fail the collect stage")
	}
	var cerr *ferrors.ClassifiedError
	if !errors.As(err, &cerr) || cerr.Category() != ferrors.CategoryArtifact {
		t.Errorf("got %v, want artifact error", err)
	}
}

func TestCollectStageFailsWhenDistDirMissing(t *testing.T) {
	st := testState(t, t.TempDir())
	err := (&CollectStage{}).Run(context.Background(), st)
	if err == nil {
		t.Fatal("missing dist directory must fail the collect stage")
	}
}

func TestCollectStageRejectsStrayFiles(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "notes.txt", "not a distribution")

	st := testState(t, sourceDir)
	if err := (&CollectStage{}).Run(context.Background(), st); err == nil {
		t.Fatal("stray file in dist directory must fail the collect stage")
	}
}

func TestCheckStageAcceptsMatchingRelease(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz", "sdist bytes")
	writeDist(t, distDir, "pyerrors-2.11.1-py3-none-any.whl", "wheel bytes")

	st := testState(t, sourceDir)
	if err := (&CollectStage{}).Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if err := (&CheckStage{}).Run(context.Background(), st); err != nil {
		t.Errorf("check failed: %v", err)
	}
}

func TestCheckStageRejectsVersionMismatch(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz", "sdist bytes")
	writeDist(t, distDir, "pyerrors-2.12.0-py3-none-any.whl", "wheel bytes")

	st := testState(t, sourceDir)
	if err := (&CollectStage{}).Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if err := (&CheckStage{}).Run(context.Background(), st); err == nil {
		t.Error("mixed versions must fail the check stage")
	}
}

func TestCheckStageRejectsNameMismatch(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "otherpkg-1.0.0.tar.gz", "sdist bytes")

	st := testState(t, sourceDir)
	if err := (&CollectStage{}).Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if err := (&CheckStage{}).Run(context.Background(), st); err == nil {
		t.Error("name mismatch must fail the check stage")
	}
}

func TestCheckStageReadmeRendering(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz", "sdist bytes")
	if err := os.WriteFile(filepath.Join(sourceDir, "README.md"), []byte("# pyerrors\n\nStructured errors.\n"), 0600); err != nil {
		t.Fatal(err)
	}

	st := testState(t, sourceDir)
	if err := (&CollectStage{}).Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if err := (&CheckStage{}).Run(context.Background(), st); err != nil {
		t.Errorf("valid README rejected: %v", err)
	}
}

func TestStoreStageRecordsDistBundle(t *testing.T) {
	sourceDir := t.TempDir()
	distDir := filepath.Join(sourceDir, "dist")
	writeDist(t, distDir, "pyerrors-2.11.1.tar.gz", "sdist bytes")
	writeDist(t, distDir, "pyerrors-2.11.1-py3-none-any.whl", "wheel bytes")

	st := testState(t, sourceDir)
	if err := (&CollectStage{}).Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	store := storage.NewMockStore()
	if err := (&StoreStage{Store: store}).Run(context.Background(), st); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if len(st.StoredHashes) != 2 {
		t.Fatalf("stored %d hashes, want 2", len(st.StoredHashes))
	}

	hashes, err := store.GetBundleRef("rel-test", storage.DistBundle)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 2 {
		t.Errorf("dist bundle has %d hashes, want 2", len(hashes))
	}
}

func TestToolBuilderMissingTool(t *testing.T) {
	b := &ToolBuilder{Tool: "definitely-not-a-real-build-tool"}
	err := b.Build(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("missing tool must fail")
	}
	var cerr *ferrors.ClassifiedError
	if !errors.As(err, &cerr) || cerr.Category() != ferrors.CategoryBuild {
		t.Errorf("got %v, want build error", err)
	}
}
