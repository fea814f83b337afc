package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("build", time.Second)
	r.ObserveReleaseDuration(time.Second)
	r.IncStageResult("build", ResultSuccess)
	r.IncReleaseOutcome("success")
	r.ObservePublishDuration("pypi", time.Second, true)
	r.IncDistributionPublished("pypi", "wheel")
	r.IncDistributionSkipped("pypi")
	r.SetQueueDepth(3)
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncStageResult("build", ResultSuccess)
	r.IncStageResult("build", ResultSuccess)
	r.IncStageResult("collect", ResultFatal)
	r.IncReleaseOutcome("success")
	r.IncDistributionPublished("pypi", "sdist")
	r.IncDistributionSkipped("pypi")
	r.SetQueueDepth(5)
	r.ObserveStageDuration("build", 2*time.Second)
	r.ObservePublishDuration("pypi", time.Second, false)

	if got := testutil.ToFloat64(r.stageResults.WithLabelValues("build", "success")); got != 2 {
		t.Errorf("stage results build/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.stageResults.WithLabelValues("collect", "fatal")); got != 1 {
		t.Errorf("stage results collect/fatal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.distsPublished.WithLabelValues("pypi", "sdist")); got != 1 {
		t.Errorf("published pypi/sdist = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.queueDepth); got != 5 {
		t.Errorf("queue depth = %v, want 5", got)
	}
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.ObserveStageDuration("build", time.Second)
	r.IncStageResult("build", ResultSuccess)
	r.IncReleaseOutcome("failed")
	r.SetQueueDepth(0)
}
