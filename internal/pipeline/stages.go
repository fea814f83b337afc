package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/git"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/storage"
	"git.home.luguber.info/inful/pkgship/internal/workspace"
)

// Stage names used in logs, metrics and reports.
const (
	StageCheckout = "checkout"
	StageBuild    = "build"
	StageCollect  = "collect"
	StageCheck    = "check"
	StageStore    = "store"
)

// CheckoutStage puts the project at the requested ref into the release's
// work directory. Each release gets its own directory unless the caller
// pinned one on the state.
type CheckoutStage struct {
	Workspace *workspace.Manager
	Git       *git.Client
}

func (s *CheckoutStage) Name() string { return StageCheckout }

func (s *CheckoutStage) Run(ctx context.Context, st *State) error {
	if err := s.Workspace.Create(); err != nil {
		return ferrors.FileSystemError("create workspace").WithCause(err).Build()
	}

	if st.WorkDir == "" {
		dir, err := s.Workspace.CreateSubdir(st.ReleaseID)
		if err != nil {
			return ferrors.FileSystemError("create release directory").WithCause(err).Build()
		}
		st.WorkDir = dir
	}

	result, err := s.Git.Checkout(st.Config.Project, st.Ref, st.WorkDir)
	if err != nil {
		return ferrors.GitError("checkout failed").
			WithContext("ref", st.Ref).
			WithContext("url", st.Config.Project.URL).
			WithCause(err).
			Build()
	}
	st.CheckoutPath = result.Path
	st.Commit = result.Commit
	if st.Ref == "" {
		st.Ref = result.Ref
	}

	sourceDir, err := git.SourceDir(result.Path, st.Config.Project)
	if err != nil {
		return ferrors.ConfigError("resolve package root").WithCause(err).Build()
	}
	st.SourceDir = sourceDir
	return nil
}

// BuildStage runs the build frontend to produce sdist and wheel files.
type BuildStage struct {
	Builder Builder
}

func (s *BuildStage) Name() string { return StageBuild }

func (s *BuildStage) Run(ctx context.Context, st *State) error {
	return s.Builder.Build(ctx, st.SourceDir)
}

// CollectStage gathers distribution files from the dist directory. A build
// that produced no distributions fails here: publishing an empty release is
// never what the operator wanted.
type CollectStage struct{}

func (s *CollectStage) Name() string { return StageCollect }

func (s *CollectStage) Run(ctx context.Context, st *State) error {
	distDir := filepath.Join(st.SourceDir, st.Config.Build.DistDir)
	dists, err := CollectDistributions(distDir)
	if err != nil {
		return err
	}
	for _, dist := range dists {
		slog.Info("Collected distribution",
			logfields.ReleaseID(st.ReleaseID), logfields.Artifact(filepath.Base(dist.File)),
			slog.String("kind", string(dist.Kind)), slog.Int64("size", dist.Size))
	}
	st.Distributions = dists
	return nil
}

// CollectDistributions gathers and digests the distribution files in distDir,
// sorted by filename. A missing or empty directory is an artifact error: a
// build that produced nothing must fail rather than publish an empty release.
func CollectDistributions(distDir string) ([]*artifact.Distribution, error) {
	entries, err := os.ReadDir(distDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ArtifactError("no distribution files were produced").
				WithContext("dist_dir", distDir).
				Build()
		}
		return nil, ferrors.FileSystemError("read dist directory").
			WithContext("dist_dir", distDir).
			WithCause(err).
			Build()
	}

	var dists []*artifact.Distribution
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dist, err := artifact.ParseFilename(filepath.Join(distDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if err := fillDigest(dist); err != nil {
			return nil, err
		}
		dists = append(dists, dist)
	}

	if len(dists) == 0 {
		return nil, ferrors.ArtifactError("no distribution files were produced").
			WithContext("dist_dir", distDir).
			Build()
	}

	sort.Slice(dists, func(i, j int) bool { return dists[i].File < dists[j].File })
	return dists, nil
}

func fillDigest(dist *artifact.Distribution) error {
	// #nosec G304 - path comes from the dist directory listing
	data, err := os.ReadFile(dist.File)
	if err != nil {
		return ferrors.FileSystemError("read distribution").
			WithContext("file", dist.File).
			WithCause(err).
			Build()
	}
	sum := sha256.Sum256(data)
	dist.SHA256 = hex.EncodeToString(sum[:])
	dist.Size = int64(len(data))
	return nil
}

// CheckStage validates the collected distributions before anything is stored
// or uploaded: consistent project/version across files, name agreement with
// the configured project, and a renderable README (indexes reject releases
// whose long description fails to render).
type CheckStage struct{}

func (s *CheckStage) Name() string { return StageCheck }

func (s *CheckStage) Run(ctx context.Context, st *State) error {
	if len(st.Distributions) == 0 {
		return ferrors.ArtifactError("nothing to check: no distributions collected").Build()
	}
	first := st.Distributions[0]
	for _, dist := range st.Distributions[1:] {
		if !dist.SameRelease(first) {
			return ferrors.ArtifactError("distributions disagree on project or version").
				WithContext("first", first.String()).
				WithContext("other", dist.String()).
				Build()
		}
	}

	if want := artifact.NormalizeName(st.Config.Project.Name); want != first.Project {
		return ferrors.ArtifactError("distribution name does not match configured project").
			WithContext("configured", want).
			WithContext("built", first.Project).
			Build()
	}

	if !st.Config.Build.SkipReadmeCheck {
		if err := checkReadme(st.SourceDir); err != nil {
			return err
		}
	}
	return nil
}

// checkReadme renders README.md to catch markup the index would reject.
// A missing README is allowed; a broken one is not.
func checkReadme(sourceDir string) error {
	readmePath := filepath.Join(sourceDir, "README.md")
	// #nosec G304 - path is rooted in the checkout
	data, err := os.ReadFile(readmePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ferrors.FileSystemError("read README").WithCause(err).Build()
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return ferrors.ArtifactError("README failed to render").
			WithContext("file", readmePath).
			WithCause(err).
			Build()
	}
	return nil
}

// StoreStage writes collected distributions into the object store and
// records them under the release's dist bundle.
type StoreStage struct {
	Store storage.BundleStore
}

func (s *StoreStage) Name() string { return StageStore }

func (s *StoreStage) Run(ctx context.Context, st *State) error {
	hashes := make([]string, 0, len(st.Distributions))
	for _, dist := range st.Distributions {
		hash, err := putDistribution(ctx, s.Store, dist)
		if err != nil {
			return ferrors.FileSystemError("store distribution").
				WithContext("file", dist.File).
				WithCause(err).
				Build()
		}
		hashes = append(hashes, hash)
	}

	if err := s.Store.AddBundleRef(st.ReleaseID, storage.DistBundle, hashes); err != nil {
		return ferrors.FileSystemError("record dist bundle").
			WithContext("release_id", st.ReleaseID).
			WithCause(err).
			Build()
	}
	st.StoredHashes = hashes
	return nil
}

func putDistribution(ctx context.Context, store storage.BundleStore, dist *artifact.Distribution) (string, error) {
	if fsStore, ok := store.(*storage.FSStore); ok {
		return fsStore.PutDistribution(ctx, dist)
	}
	// #nosec G304 - path comes from the dist directory listing
	data, err := os.ReadFile(dist.File)
	if err != nil {
		return "", fmt.Errorf("read distribution: %w", err)
	}
	objectType := storage.ObjectTypeSdist
	if dist.Kind == artifact.KindWheel {
		objectType = storage.ObjectTypeWheel
	}
	return store.Put(ctx, &storage.Object{
		Type: objectType,
		Data: data,
		Metadata: storage.Metadata{
			Custom: map[string]string{
				storage.MetaFilename: filepath.Base(dist.File),
				storage.MetaProject:  dist.Project,
				storage.MetaVersion:  dist.Version,
			},
		},
	})
}

// DefaultStages assembles the standard release flow. The store stage is
// omitted when no object store is configured (one-shot CLI builds).
func DefaultStages(ws *workspace.Manager, gitClient *git.Client, builder Builder, store storage.BundleStore) []Stage {
	stages := []Stage{
		&CheckoutStage{Workspace: ws, Git: gitClient},
		&BuildStage{Builder: builder},
		&CollectStage{},
		&CheckStage{},
	}
	if store != nil {
		stages = append(stages, &StoreStage{Store: store})
	}
	return stages
}
