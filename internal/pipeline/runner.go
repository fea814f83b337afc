package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/metrics"
)

// Stage is one step of the release flow. Stages run sequentially; a failing
// stage stops the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// Runner executes stages in order and records per-stage metrics.
type Runner struct {
	stages   []Stage
	recorder metrics.Recorder
}

// NewRunner creates a runner over the given stages. A nil recorder falls
// back to the no-op recorder.
func NewRunner(stages []Stage, recorder metrics.Recorder) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Runner{stages: stages, recorder: recorder}
}

// Run executes the pipeline for one release. The report always lists every
// stage that ran, including the failing one.
func (r *Runner) Run(ctx context.Context, st *State) *Report {
	st.StartedAt = time.Now()
	report := &Report{ReleaseID: st.ReleaseID}

	slog.Info("Release pipeline started",
		logfields.ReleaseID(st.ReleaseID),
		logfields.Project(st.Config.Project.Name),
		logfields.Ref(st.Ref),
		slog.String("trigger", string(st.Trigger)))

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			report.Err = fmt.Errorf("pipeline canceled before stage %s: %w", stage.Name(), err)
			r.recorder.IncStageResult(stage.Name(), metrics.ResultCanceled)
			break
		}

		start := time.Now()
		slog.Debug("Stage starting", logfields.ReleaseID(st.ReleaseID), logfields.Stage(stage.Name()))
		err := stage.Run(ctx, st)
		elapsed := time.Since(start)

		report.Results = append(report.Results, StageResult{Stage: stage.Name(), Duration: elapsed, Err: err})
		r.recorder.ObserveStageDuration(stage.Name(), elapsed)

		if err != nil {
			result := metrics.ResultFatal
			if ctx.Err() != nil {
				result = metrics.ResultCanceled
			}
			r.recorder.IncStageResult(stage.Name(), result)
			slog.Error("Stage failed",
				logfields.ReleaseID(st.ReleaseID), logfields.Stage(stage.Name()),
				logfields.DurationMS(float64(elapsed.Milliseconds())), logfields.Error(err))
			report.Err = fmt.Errorf("stage %s: %w", stage.Name(), err)
			break
		}

		r.recorder.IncStageResult(stage.Name(), metrics.ResultSuccess)
		slog.Info("Stage completed",
			logfields.ReleaseID(st.ReleaseID), logfields.Stage(stage.Name()),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
	}

	report.Duration = time.Since(st.StartedAt)
	r.recorder.ObserveReleaseDuration(report.Duration)
	if report.Failed() {
		r.recorder.IncReleaseOutcome("failed")
		slog.Error("Release pipeline failed",
			logfields.ReleaseID(st.ReleaseID), logfields.Stage(report.FailedStage()),
			logfields.DurationMS(float64(report.Duration.Milliseconds())))
	} else {
		r.recorder.IncReleaseOutcome("success")
		slog.Info("Release pipeline completed",
			logfields.ReleaseID(st.ReleaseID),
			slog.Int("distributions", len(st.Distributions)),
			logfields.DurationMS(float64(report.Duration.Milliseconds())))
	}
	return report
}
