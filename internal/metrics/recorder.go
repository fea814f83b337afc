// Package metrics defines observability hooks for release pipeline metrics.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for release and stage metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder allows optional injection.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveReleaseDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncReleaseOutcome(outcome string) // outcome: success|failed|canceled
	ObservePublishDuration(index string, d time.Duration, success bool)
	IncDistributionPublished(index, kind string)
	IncDistributionSkipped(index string)
	SetQueueDepth(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)          {}
func (NoopRecorder) ObserveReleaseDuration(time.Duration)                {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                  {}
func (NoopRecorder) IncReleaseOutcome(string)                            {}
func (NoopRecorder) ObservePublishDuration(string, time.Duration, bool)  {}
func (NoopRecorder) IncDistributionPublished(string, string)             {}
func (NoopRecorder) IncDistributionSkipped(string)                       {}
func (NoopRecorder) SetQueueDepth(int)                                   {}
