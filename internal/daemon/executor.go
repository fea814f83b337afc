package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	"git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/index"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/metrics"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/queue"
	"git.home.luguber.info/inful/pkgship/internal/storage"
)

// StagePublish is the pseudo-stage name reported when uploads fail after a
// successful pipeline run.
const StagePublish = "publish"

// releasePublisher abstracts the index publisher so tests can observe
// uploads without HTTP servers.
type releasePublisher interface {
	Publish(ctx context.Context, dists []*artifact.Distribution) (*index.PublishReport, error)
}

// ReleaseExecutor runs one release end to end: the staged pipeline
// (checkout, build, collect, check, store) followed by index publishing.
// It implements queue.Executor.
type ReleaseExecutor struct {
	mu        sync.RWMutex
	cfg       *config.Config
	stages    []pipeline.Stage
	publisher releasePublisher
	recorder  metrics.Recorder
	emitter   *EventEmitter
}

// NewReleaseExecutor creates an executor over the given stages and publisher.
func NewReleaseExecutor(cfg *config.Config, stages []pipeline.Stage, publisher releasePublisher, recorder metrics.Recorder) *ReleaseExecutor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &ReleaseExecutor{
		cfg:       cfg,
		stages:    stages,
		publisher: publisher,
		recorder:  recorder,
	}
}

// SetEventEmitter injects the emitter used for per-stage progress events.
// The queue emits the surrounding requested/completed/failed events itself.
func (e *ReleaseExecutor) SetEventEmitter(emitter *EventEmitter) { e.emitter = emitter }

// Reconfigure swaps the config, stages and publisher for subsequent
// releases. In-flight releases keep the snapshot they started with.
func (e *ReleaseExecutor) Reconfigure(cfg *config.Config, stages []pipeline.Stage, publisher releasePublisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.stages = stages
	e.publisher = publisher
}

// Execute implements queue.Executor.
func (e *ReleaseExecutor) Execute(ctx context.Context, job *queue.ReleaseJob) (*queue.Outcome, error) {
	e.mu.RLock()
	cfg, stages, publisher := e.cfg, e.stages, e.publisher
	e.mu.RUnlock()

	st := &pipeline.State{
		ReleaseID: job.ID,
		Trigger:   job.Trigger,
		Ref:       job.Ref,
		Config:    cfg,
		StartedAt: time.Now(),
	}

	runner := pipeline.NewRunner(stages, e.recorder)
	report := runner.Run(ctx, st)
	defer e.removeWorkDir(st)

	e.emitProgress(ctx, st, report)

	outcome := &queue.Outcome{}
	if len(st.Distributions) > 0 {
		outcome.Version = st.Distributions[0].Version
	}

	if report.Failed() {
		outcome.FailedStage = report.FailedStage()
		return outcome, report.Err
	}

	if publisher == nil {
		return outcome, nil
	}

	pubReport, err := publisher.Publish(ctx, st.Distributions)
	if pubReport != nil {
		e.emitPublishResults(ctx, st.ReleaseID, pubReport)
		outcome.Uploaded = pubReport.Uploaded()
		outcome.Skipped = pubReport.Skipped()
	}
	if err != nil {
		outcome.FailedStage = StagePublish
		return outcome, err
	}

	return outcome, nil
}

// removeWorkDir drops the release's checkout directory once its
// distributions have been stored and published. Uploads read the files
// before this runs.
func (e *ReleaseExecutor) removeWorkDir(st *pipeline.State) {
	if st.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(st.WorkDir); err != nil {
		slog.Warn("Failed to remove release work directory",
			logfields.ReleaseID(st.ReleaseID), logfields.Path(st.WorkDir), logfields.Error(err))
	}
}

// emitProgress records per-stage events for the parts of the pipeline that
// completed, whether or not a later stage failed.
func (e *ReleaseExecutor) emitProgress(ctx context.Context, st *pipeline.State, report *pipeline.Report) {
	if e.emitter == nil {
		return
	}

	if st.Commit != "" {
		var checkoutDuration time.Duration
		for _, res := range report.Results {
			if res.Stage == pipeline.StageCheckout {
				checkoutDuration = res.Duration
				break
			}
		}
		_ = e.emitter.EmitSourceCheckedOut(ctx, st.ReleaseID, st.Ref, st.Commit, checkoutDuration)
	}

	if len(st.Distributions) > 0 {
		files := make([]string, 0, len(st.Distributions))
		for _, dist := range st.Distributions {
			files = append(files, filepath.Base(dist.File))
		}
		_ = e.emitter.EmitBuildCompleted(ctx, st.ReleaseID, st.Distributions[0].Version, files)
	}

	if len(st.StoredHashes) > 0 {
		_ = e.emitter.EmitArtifactStored(ctx, st.ReleaseID, storage.DistBundle, st.StoredHashes)
	}
}

func (e *ReleaseExecutor) emitPublishResults(ctx context.Context, releaseID string, report *index.PublishReport) {
	if e.emitter == nil {
		return
	}
	for _, res := range report.Results {
		if res.Err != nil {
			continue
		}
		_ = e.emitter.EmitDistributionPublished(ctx, releaseID, res.Index, res.File, res.Skipped)
	}
}
