package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	"git.home.luguber.info/inful/pkgship/internal/config"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/metrics"
	"git.home.luguber.info/inful/pkgship/internal/retry"
)

// Publisher uploads a release's distributions to every configured index.
type Publisher struct {
	clients  []*Client
	policy   retry.Policy
	recorder metrics.Recorder
}

// NewPublisher creates a publisher over the configured indexes.
func NewPublisher(indexes []config.IndexConfig, policy retry.Policy, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	clients := make([]*Client, 0, len(indexes))
	for _, cfg := range indexes {
		clients = append(clients, NewClient(cfg))
	}
	return &Publisher{clients: clients, policy: policy, recorder: recorder}
}

// UploadResult describes the outcome for one distribution on one index.
type UploadResult struct {
	Index    string
	File     string
	Skipped  bool
	Duration time.Duration
	Err      error
}

// PublishReport aggregates results across indexes.
type PublishReport struct {
	Results []UploadResult
}

// Failed reports whether any upload failed.
func (r *PublishReport) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Uploaded counts successful (non-skipped) uploads.
func (r *PublishReport) Uploaded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			n++
		}
	}
	return n
}

// Skipped counts uploads skipped because the index already had the file.
func (r *PublishReport) Skipped() int {
	n := 0
	for _, res := range r.Results {
		if res.Skipped {
			n++
		}
	}
	return n
}

// Publish uploads each distribution to each index. Indexes are independent:
// a failure on one does not stop uploads to the others, but any failure
// fails the publish overall.
func (p *Publisher) Publish(ctx context.Context, dists []*artifact.Distribution) (*PublishReport, error) {
	if len(dists) == 0 {
		return nil, ferrors.PublishError("nothing to publish: no distributions").Build()
	}

	report := &PublishReport{}
	for _, client := range p.clients {
		p.publishToIndex(ctx, client, dists, report)
	}

	if report.Failed() {
		return report, ferrors.PublishError("one or more uploads failed").
			WithContext("uploaded", report.Uploaded()).
			WithContext("skipped", report.Skipped()).
			Build()
	}
	return report, nil
}

func (p *Publisher) publishToIndex(ctx context.Context, client *Client, dists []*artifact.Distribution, report *PublishReport) {
	var existing map[string]bool
	if client.SkipExisting() && client.cfg.SimpleURL != "" {
		var err error
		existing, err = client.ListProjectFiles(ctx, dists[0].Project)
		if err != nil {
			// The upload path still honors duplicate responses, so a
			// failed pre-check only costs bandwidth.
			slog.Warn("Simple index pre-check failed",
				logfields.Index(client.Name()), logfields.Error(err))
			existing = nil
		}
	}

	for _, dist := range dists {
		base := filepath.Base(dist.File)
		if existing[base] {
			slog.Info("Skipping distribution already on index",
				logfields.Index(client.Name()), logfields.Artifact(base))
			p.recorder.IncDistributionSkipped(client.Name())
			report.Results = append(report.Results, UploadResult{Index: client.Name(), File: base, Skipped: true})
			continue
		}

		start := time.Now()
		err := p.uploadWithRetry(ctx, client, dist)
		elapsed := time.Since(start)

		result := UploadResult{Index: client.Name(), File: base, Duration: elapsed}
		switch {
		case errors.Is(err, ErrAlreadyExists) && client.SkipExisting():
			result.Skipped = true
			p.recorder.IncDistributionSkipped(client.Name())
			slog.Info("Index already has distribution",
				logfields.Index(client.Name()), logfields.Artifact(base))
		case err != nil:
			result.Err = err
			p.recorder.ObservePublishDuration(client.Name(), elapsed, false)
			slog.Error("Upload failed",
				logfields.Index(client.Name()), logfields.Artifact(base), logfields.Error(err))
		default:
			p.recorder.ObservePublishDuration(client.Name(), elapsed, true)
			p.recorder.IncDistributionPublished(client.Name(), string(dist.Kind))
			slog.Info("Distribution published",
				logfields.Index(client.Name()), logfields.Artifact(base),
				logfields.DurationMS(float64(elapsed.Milliseconds())))
		}
		report.Results = append(report.Results, result)
	}
}

// uploadWithRetry retries transient upload failures per the configured policy.
func (p *Publisher) uploadWithRetry(ctx context.Context, client *Client, dist *artifact.Distribution) error {
	var lastErr error
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying upload",
				logfields.Index(client.Name()), logfields.Artifact(filepath.Base(dist.File)),
				slog.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.policy.Delay(attempt)):
			}
		}
		err := client.Upload(ctx, dist)
		if err == nil || errors.Is(err, ErrAlreadyExists) {
			return err
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
	}
	return fmt.Errorf("upload failed after retries: %w", lastErr)
}

func isTransient(err error) bool {
	var cerr *ferrors.ClassifiedError
	if errors.As(err, &cerr) {
		return cerr.CanRetry()
	}
	return false
}
