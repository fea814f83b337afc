// Package eventstore provides event sourcing primitives for release tracking.
package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/foundation/errors"
)

// Event type names stored in the event log.
const (
	TypeReleaseRequested      = "ReleaseRequested"
	TypeSourceCheckedOut      = "SourceCheckedOut"
	TypeBuildCompleted        = "BuildCompleted"
	TypeArtifactStored        = "ArtifactStored"
	TypeDistributionPublished = "DistributionPublished"
	TypeReleaseCompleted      = "ReleaseCompleted"
	TypeReleaseFailed         = "ReleaseFailed"
)

// ReleaseRequested is emitted when a release enters the queue.
type ReleaseRequested struct {
	BaseEvent
	Project string `json:"project"`
	Ref     string `json:"ref"`
	Trigger string `json:"trigger"` // manual|webhook|scheduled
}

// NewReleaseRequested creates a ReleaseRequested event.
func NewReleaseRequested(releaseID, project, ref, trigger string) (*ReleaseRequested, error) {
	payload, err := json.Marshal(map[string]any{
		"project": project,
		"ref":     ref,
		"trigger": trigger,
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal ReleaseRequested payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &ReleaseRequested{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeReleaseRequested,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Project: project,
		Ref:     ref,
		Trigger: trigger,
	}, nil
}

// SourceCheckedOut is emitted when the project source is cloned at the
// requested ref.
type SourceCheckedOut struct {
	BaseEvent
	Ref      string        `json:"ref"`
	Commit   string        `json:"commit"`
	Duration time.Duration `json:"duration_ms"`
}

// NewSourceCheckedOut creates a SourceCheckedOut event.
func NewSourceCheckedOut(releaseID, ref, commit string, duration time.Duration) (*SourceCheckedOut, error) {
	payload, err := json.Marshal(map[string]any{
		"ref":         ref,
		"commit":      commit,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal SourceCheckedOut payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &SourceCheckedOut{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeSourceCheckedOut,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Ref:      ref,
		Commit:   commit,
		Duration: duration,
	}, nil
}

// BuildCompleted is emitted when the build produced its distributions.
type BuildCompleted struct {
	BaseEvent
	Version string   `json:"version"`
	Files   []string `json:"files"`
}

// NewBuildCompleted creates a BuildCompleted event.
func NewBuildCompleted(releaseID, version string, files []string) (*BuildCompleted, error) {
	payload, err := json.Marshal(map[string]any{
		"version": version,
		"files":   files,
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal BuildCompleted payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &BuildCompleted{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeBuildCompleted,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Version: version,
		Files:   files,
	}, nil
}

// ArtifactStored is emitted when the dist bundle lands in the object store.
type ArtifactStored struct {
	BaseEvent
	Bundle string   `json:"bundle"`
	Hashes []string `json:"hashes"`
}

// NewArtifactStored creates an ArtifactStored event.
func NewArtifactStored(releaseID, bundle string, hashes []string) (*ArtifactStored, error) {
	payload, err := json.Marshal(map[string]any{
		"bundle": bundle,
		"hashes": hashes,
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal ArtifactStored payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &ArtifactStored{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeArtifactStored,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Bundle: bundle,
		Hashes: hashes,
	}, nil
}

// DistributionPublished is emitted per uploaded file per index.
type DistributionPublished struct {
	BaseEvent
	Index   string `json:"index"`
	File    string `json:"file"`
	Skipped bool   `json:"skipped"`
}

// NewDistributionPublished creates a DistributionPublished event.
func NewDistributionPublished(releaseID, indexName, file string, skipped bool) (*DistributionPublished, error) {
	payload, err := json.Marshal(map[string]any{
		"index":   indexName,
		"file":    file,
		"skipped": skipped,
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal DistributionPublished payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &DistributionPublished{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeDistributionPublished,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Index:   indexName,
		File:    file,
		Skipped: skipped,
	}, nil
}

// ReleaseCompleted is emitted when the full flow, publish included, succeeded.
type ReleaseCompleted struct {
	BaseEvent
	Version  string        `json:"version"`
	Uploaded int           `json:"uploaded"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ms"`
}

// NewReleaseCompleted creates a ReleaseCompleted event.
func NewReleaseCompleted(releaseID, version string, uploaded, skipped int, duration time.Duration) (*ReleaseCompleted, error) {
	payload, err := json.Marshal(map[string]any{
		"version":     version,
		"uploaded":    uploaded,
		"skipped":     skipped,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal ReleaseCompleted payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &ReleaseCompleted{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeReleaseCompleted,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Version:  version,
		Uploaded: uploaded,
		Skipped:  skipped,
		Duration: duration,
	}, nil
}

// ReleaseFailed is emitted when any stage or the publish step failed.
type ReleaseFailed struct {
	BaseEvent
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// NewReleaseFailed creates a ReleaseFailed event.
func NewReleaseFailed(releaseID, stage, message string) (*ReleaseFailed, error) {
	payload, err := json.Marshal(map[string]any{
		"stage":   stage,
		"message": message,
	})
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal ReleaseFailed payload").
			WithCause(err).
			WithContext("release_id", releaseID).
			Build()
	}
	return &ReleaseFailed{
		BaseEvent: BaseEvent{
			EventReleaseID: releaseID,
			EventType:      TypeReleaseFailed,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Stage:   stage,
		Message: message,
	}, nil
}
