package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Release status values exposed through the read model.
const (
	ReleaseStatusRunning   = "running"
	ReleaseStatusCompleted = "completed"
	ReleaseStatusFailed    = "failed"
)

// ReleaseSummary is a read model summarizing one release.
type ReleaseSummary struct {
	ReleaseID    string     `json:"release_id"`
	Project      string     `json:"project,omitempty"`
	Ref          string     `json:"ref,omitempty"`
	Version      string     `json:"version,omitempty"`
	Trigger      string     `json:"trigger,omitempty"`
	Status       string     `json:"status"`
	Commit       string     `json:"commit,omitempty"`
	Files        []string   `json:"files,omitempty"`
	Uploaded     int        `json:"uploaded"`
	Skipped      int        `json:"skipped"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorStage   string     `json:"error_stage,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ReleaseHistoryProjection maintains an in-memory view of release history,
// reconstructed from events in the store.
type ReleaseHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	releases map[string]*ReleaseSummary
	maxSize  int
}

// NewReleaseHistoryProjection creates a new projection backed by the given store.
func NewReleaseHistoryProjection(store Store, maxHistorySize int) *ReleaseHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &ReleaseHistoryProjection{
		store:    store,
		releases: make(map[string]*ReleaseSummary),
		maxSize:  maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store,
// typically at startup.
func (p *ReleaseHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProjectionRebuildFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases = make(map[string]*ReleaseSummary)
	for _, event := range events {
		p.applyLocked(event)
	}
	p.pruneLocked()
	return nil
}

// Apply processes a single event for real-time updates.
func (p *ReleaseHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(event)
	p.pruneLocked()
}

func (p *ReleaseHistoryProjection) applyLocked(event Event) {
	releaseID := event.ReleaseID()
	if releaseID == "" {
		return
	}

	summary, exists := p.releases[releaseID]
	if !exists {
		summary = &ReleaseSummary{
			ReleaseID: releaseID,
			Status:    ReleaseStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.releases[releaseID] = summary
	}

	switch event.Type() {
	case TypeReleaseRequested:
		summary.StartedAt = event.Timestamp()
		var payload struct {
			Project string `json:"project"`
			Ref     string `json:"ref"`
			Trigger string `json:"trigger"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Project = payload.Project
			summary.Ref = payload.Ref
			summary.Trigger = payload.Trigger
		}

	case TypeSourceCheckedOut:
		var payload struct {
			Commit string `json:"commit"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Commit = payload.Commit
		}

	case TypeBuildCompleted:
		var payload struct {
			Version string   `json:"version"`
			Files   []string `json:"files"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Version = payload.Version
			summary.Files = payload.Files
		}

	case TypeDistributionPublished:
		var payload struct {
			Skipped bool `json:"skipped"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			if payload.Skipped {
				summary.Skipped++
			} else {
				summary.Uploaded++
			}
		}

	case TypeReleaseCompleted:
		completedAt := event.Timestamp()
		summary.CompletedAt = &completedAt
		summary.Status = ReleaseStatusCompleted
		var payload struct {
			Version  string `json:"version"`
			Uploaded int    `json:"uploaded"`
			Skipped  int    `json:"skipped"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			if payload.Version != "" {
				summary.Version = payload.Version
			}
			// The completion event carries authoritative totals.
			summary.Uploaded = payload.Uploaded
			summary.Skipped = payload.Skipped
		}

	case TypeReleaseFailed:
		completedAt := event.Timestamp()
		summary.CompletedAt = &completedAt
		summary.Status = ReleaseStatusFailed
		var payload struct {
			Stage   string `json:"stage"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.ErrorStage = payload.Stage
			summary.ErrorMessage = payload.Message
		}
	}
}

// pruneLocked drops the oldest finished releases beyond the size bound.
// Running releases are never pruned.
func (p *ReleaseHistoryProjection) pruneLocked() {
	if len(p.releases) <= p.maxSize {
		return
	}
	finished := make([]*ReleaseSummary, 0, len(p.releases))
	for _, summary := range p.releases {
		if summary.Status != ReleaseStatusRunning {
			finished = append(finished, summary)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].StartedAt.Before(finished[j].StartedAt) })
	for _, summary := range finished {
		if len(p.releases) <= p.maxSize {
			break
		}
		delete(p.releases, summary.ReleaseID)
	}
}

// Get returns the summary for one release.
func (p *ReleaseHistoryProjection) Get(releaseID string) (*ReleaseSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	summary, ok := p.releases[releaseID]
	if !ok {
		return nil, false
	}
	copied := *summary
	return &copied, true
}

// History returns all known releases, newest first.
func (p *ReleaseHistoryProjection) History() []*ReleaseSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ReleaseSummary, 0, len(p.releases))
	for _, summary := range p.releases {
		copied := *summary
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
