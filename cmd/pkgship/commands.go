package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	"git.home.luguber.info/inful/pkgship/internal/config"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/git"
	"git.home.luguber.info/inful/pkgship/internal/index"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/metrics"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/retry"
	"git.home.luguber.info/inful/pkgship/internal/storage"
	"git.home.luguber.info/inful/pkgship/internal/workspace"
)

// runPipeline executes the release pipeline (without the store stage) and
// returns the resulting state. The caller decides whether to publish.
func runPipeline(cfg *config.Config, ref string, keep bool) (*pipeline.State, error) {
	workspaceBase := cfg.Build.WorkspaceDir
	if workspaceBase == "" {
		workspaceBase = filepath.Join(os.TempDir(), "pkgship")
	}
	ws := workspace.NewPersistentManager(workspaceBase, "working")
	if !keep {
		defer func() {
			if err := os.RemoveAll(ws.Path()); err != nil {
				slog.Warn("Failed to clean up workspace", logfields.Path(ws.Path()), logfields.Error(err))
			}
		}()
	}

	gitClient := git.NewClient().WithBuildConfig(&cfg.Build)

	timeout, err := time.ParseDuration(cfg.Build.Timeout)
	if err != nil {
		return nil, ferrors.ConfigError("invalid build timeout").
			WithContext("timeout", cfg.Build.Timeout).
			WithCause(err).
			Build()
	}
	builder := &pipeline.ToolBuilder{
		Tool:    cfg.Build.Tool,
		Args:    cfg.Build.Args,
		Timeout: timeout,
	}

	stages := pipeline.DefaultStages(ws, gitClient, builder, nil)
	runner := pipeline.NewRunner(stages, metrics.NoopRecorder{})

	st := &pipeline.State{
		ReleaseID: uuid.NewString(),
		Trigger:   pipeline.TriggerManual,
		Ref:       ref,
		Config:    cfg,
		// One release at a time here: pin the persistent directory so a
		// kept workspace is updated with a fetch on the next run.
		WorkDir:   ws.Path(),
		StartedAt: time.Now(),
	}
	report := runner.Run(context.Background(), st)
	if report.Failed() {
		return st, report.Err
	}
	return st, nil
}

func runBuild(cfg *config.Config, ref string, keep bool) error {
	st, err := runPipeline(cfg, ref, keep)
	if err != nil {
		return err
	}

	fmt.Printf("Built %d distribution(s) for %s %s:\n",
		len(st.Distributions), cfg.Project.Name, st.Distributions[0].Version)
	for _, dist := range st.Distributions {
		fmt.Printf("  %s (%s, %d bytes)\n", filepath.Base(dist.File), dist.Kind, dist.Size)
	}
	if keep {
		fmt.Printf("Workspace kept at %s\n", st.CheckoutPath)
	}
	return nil
}

func runRelease(cfg *config.Config, ref string) error {
	st, err := runPipeline(cfg, ref, false)
	if err != nil {
		return err
	}
	return publishDistributions(cfg, st.Distributions)
}

func runPublish(cfg *config.Config, distDir string) error {
	dists, err := pipeline.CollectDistributions(distDir)
	if err != nil {
		return err
	}

	// The same pre-upload checks the pipeline applies, minus the README
	// render (the source tree is not available here).
	first := dists[0]
	for _, dist := range dists[1:] {
		if !dist.SameRelease(first) {
			return ferrors.ArtifactError("distributions disagree on project or version").
				WithContext("first", first.String()).
				WithContext("other", dist.String()).
				Build()
		}
	}
	if want := artifact.NormalizeName(cfg.Project.Name); want != first.Project {
		return ferrors.ArtifactError("distribution name does not match configured project").
			WithContext("configured", want).
			WithContext("built", first.Project).
			Build()
	}

	return publishDistributions(cfg, dists)
}

// runPublishStored publishes the dist bundle an earlier release stored,
// resolved by release ID from the daemon's artifact store.
func runPublishStored(cfg *config.Config, releaseID string) error {
	dataDir := config.DefaultDataDir
	if cfg.Daemon != nil && cfg.Daemon.Storage.DataDir != "" {
		dataDir = cfg.Daemon.Storage.DataDir
	}
	store, err := storage.NewFSStore(filepath.Join(dataDir, "store"))
	if err != nil {
		return ferrors.FileSystemError("open artifact store").
			WithContext("data_dir", dataDir).
			WithCause(err).
			Build()
	}
	defer store.Close()

	distDir, err := materializeBundle(context.Background(), store, releaseID)
	if err != nil {
		return err
	}
	defer os.RemoveAll(distDir)

	return runPublish(cfg, distDir)
}

// materializeBundle writes a release's stored dist bundle into a staging
// directory so the regular publish path can re-digest and upload it.
func materializeBundle(ctx context.Context, store storage.BundleStore, releaseID string) (string, error) {
	hashes, err := store.GetBundleRef(releaseID, storage.DistBundle)
	if err != nil {
		return "", ferrors.FileSystemError("read bundle ref").
			WithContext("release_id", releaseID).
			WithCause(err).
			Build()
	}
	if len(hashes) == 0 {
		return "", ferrors.ArtifactError("no stored dist bundle for release").
			WithContext("release_id", releaseID).
			Build()
	}

	dir, err := os.MkdirTemp("", "pkgship-publish-")
	if err != nil {
		return "", ferrors.FileSystemError("create staging directory").WithCause(err).Build()
	}
	for _, hash := range hashes {
		obj, err := store.Get(ctx, hash)
		if err != nil {
			os.RemoveAll(dir)
			return "", ferrors.ArtifactError("stored distribution missing").
				WithContext("release_id", releaseID).
				WithContext("hash", hash).
				WithCause(err).
				Build()
		}
		name := obj.Metadata.Custom[storage.MetaFilename]
		if name == "" {
			os.RemoveAll(dir)
			return "", ferrors.ArtifactError("stored object has no filename metadata").
				WithContext("hash", hash).
				Build()
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(name)), obj.Data, 0o600); err != nil {
			os.RemoveAll(dir)
			return "", ferrors.FileSystemError("write staged distribution").WithCause(err).Build()
		}
	}
	return dir, nil
}

func publishDistributions(cfg *config.Config, dists []*artifact.Distribution) error {
	if len(cfg.Indexes) == 0 {
		return ferrors.ConfigError("no indexes configured").Build()
	}

	publisher := index.NewPublisher(cfg.Indexes, retry.FromBuildConfig(cfg.Build), nil)
	report, err := publisher.Publish(context.Background(), dists)
	if report != nil {
		fmt.Printf("Published %d, skipped %d across %d index(es)\n",
			report.Uploaded(), report.Skipped(), len(cfg.Indexes))
	}
	return err
}

// runStatus queries a running daemon's admin API.
func runStatus(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(baseURL + "/api/status")
	if err != nil {
		return ferrors.DaemonError("daemon not reachable").
			WithContext("url", baseURL).
			WithCause(err).
			Build()
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return ferrors.DaemonError("invalid status response").WithCause(err).Build()
	}

	fmt.Printf("Daemon:  %v\n", status["status"])
	fmt.Printf("Project: %v\n", status["project"])
	fmt.Printf("Uptime:  %v\n", status["uptime"])
	fmt.Printf("Active:  %v  Queued: %v\n", status["active_jobs"], status["queue_length"])

	releases, err := fetchReleases(client, baseURL)
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		return nil
	}

	fmt.Println("\nRecent releases:")
	for i, rel := range releases {
		if i >= 5 {
			break
		}
		line := fmt.Sprintf("  %s  %-9s %s", rel.ReleaseID, rel.Status, rel.Version)
		if rel.ErrorStage != "" {
			line += fmt.Sprintf("  (failed in %s)", rel.ErrorStage)
		}
		fmt.Println(line)
	}
	return nil
}

type releaseLine struct {
	ReleaseID  string `json:"release_id"`
	Status     string `json:"status"`
	Version    string `json:"version"`
	ErrorStage string `json:"error_stage"`
}

func fetchReleases(client *http.Client, baseURL string) ([]releaseLine, error) {
	resp, err := client.Get(baseURL + "/api/releases")
	if err != nil {
		return nil, ferrors.DaemonError("failed to fetch release history").WithCause(err).Build()
	}
	defer resp.Body.Close()

	var payload struct {
		Releases []releaseLine `json:"releases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, ferrors.DaemonError("invalid releases response").WithCause(err).Build()
	}
	return payload.Releases, nil
}
