// Package pipeline runs the staged release flow: checkout, build, collect,
// check and store.
package pipeline

import (
	"time"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	"git.home.luguber.info/inful/pkgship/internal/config"
)

// Trigger identifies what started a release.
type Trigger string

const (
	// TriggerManual is an operator-initiated release (CLI or admin API).
	TriggerManual Trigger = "manual"
	// TriggerWebhook is a release-published event from the forge.
	TriggerWebhook Trigger = "webhook"
	// TriggerScheduled is a timer-initiated release.
	TriggerScheduled Trigger = "scheduled"
)

// State carries release context between stages. Stages read fields written
// by their predecessors and fill in their own.
type State struct {
	ReleaseID string
	Trigger   Trigger
	// Ref is the requested tag, branch or commit; empty means the
	// configured branch.
	Ref    string
	Config *config.Config

	// WorkDir is the directory this release builds in. Left empty, the
	// checkout stage allocates a per-release subdirectory so concurrent
	// releases cannot touch each other's checkouts; a caller that
	// serializes runs may pin it to reuse the checkout between runs.
	WorkDir string

	// Filled by the checkout stage.
	CheckoutPath string
	SourceDir    string
	Commit       string

	// Filled by the collect stage.
	Distributions []*artifact.Distribution

	// Filled by the store stage.
	StoredHashes []string

	StartedAt time.Time
}

// StageResult records the outcome of one executed stage.
type StageResult struct {
	Stage    string
	Duration time.Duration
	Err      error
}

// Report summarizes a pipeline run.
type Report struct {
	ReleaseID string
	Results   []StageResult
	Duration  time.Duration
	Err       error
}

// Failed reports whether any stage failed.
func (r *Report) Failed() bool { return r.Err != nil }

// FailedStage returns the name of the failed stage, or "" on success.
func (r *Report) FailedStage() string {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Stage
		}
	}
	return ""
}
