package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	stageDuration    *prom.HistogramVec
	releaseDuration  prom.Histogram
	stageResults     *prom.CounterVec
	releaseOutcome   *prom.CounterVec
	publishDuration  *prom.HistogramVec
	distsPublished   *prom.CounterVec
	distsSkipped     *prom.CounterVec
	queueDepth       prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pkgship",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual release pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.releaseDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pkgship",
			Name:      "release_duration_seconds",
			Help:      "Total release pipeline duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pkgship",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.releaseOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pkgship",
			Name:      "release_outcomes_total",
			Help:      "Release outcomes by final status",
		}, []string{"outcome"})
		pr.publishDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pkgship",
			Name:      "publish_duration_seconds",
			Help:      "Duration of distribution uploads per index",
			Buckets:   prom.DefBuckets,
		}, []string{"index", "result"})
		pr.distsPublished = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pkgship",
			Name:      "distributions_published_total",
			Help:      "Distributions uploaded per index and kind",
		}, []string{"index", "kind"})
		pr.distsSkipped = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pkgship",
			Name:      "distributions_skipped_total",
			Help:      "Distributions skipped because the index already has the file",
		}, []string{"index"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "pkgship",
			Name:      "release_queue_depth",
			Help:      "Pending release jobs in the queue",
		})
		reg.MustRegister(pr.stageDuration, pr.releaseDuration, pr.stageResults,
			pr.releaseOutcome, pr.publishDuration, pr.distsPublished, pr.distsSkipped, pr.queueDepth)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveReleaseDuration(d time.Duration) {
	if p == nil || p.releaseDuration == nil {
		return
	}
	p.releaseDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncReleaseOutcome(outcome string) {
	if p == nil || p.releaseOutcome == nil {
		return
	}
	p.releaseOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObservePublishDuration(index string, d time.Duration, success bool) {
	if p == nil || p.publishDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.publishDuration.WithLabelValues(index, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDistributionPublished(index, kind string) {
	if p == nil || p.distsPublished == nil {
		return
	}
	p.distsPublished.WithLabelValues(index, kind).Inc()
}

func (p *PrometheusRecorder) IncDistributionSkipped(index string) {
	if p == nil || p.distsSkipped == nil {
		return
	}
	p.distsSkipped.WithLabelValues(index).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}
