package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/eventstore"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
)

// EventSink receives release lifecycle events after they are persisted.
// Sink failures are logged, never propagated: external fan-out must not
// fail a release.
type EventSink interface {
	Publish(ctx context.Context, event eventstore.Event) error
}

// EventEmitter persists release lifecycle events to the event store and
// updates the history projection, then fans the event out to optional sinks.
type EventEmitter struct {
	store      eventstore.Store
	projection *eventstore.ReleaseHistoryProjection
	sinks      []EventSink
	project    string
}

// NewEventEmitter creates an EventEmitter over the given store and projection.
func NewEventEmitter(store eventstore.Store, projection *eventstore.ReleaseHistoryProjection, project string) *EventEmitter {
	return &EventEmitter{
		store:      store,
		projection: projection,
		project:    project,
	}
}

// AddSink registers an additional event sink (e.g. a message broker).
func (e *EventEmitter) AddSink(sink EventSink) {
	if sink != nil {
		e.sinks = append(e.sinks, sink)
	}
}

// EmitEvent persists an event, applies it to the projection and notifies
// sinks. This is the canonical way to record release lifecycle events.
func (e *EventEmitter) EmitEvent(ctx context.Context, event eventstore.Event) error {
	if e.store == nil {
		return nil
	}

	if err := e.store.Append(ctx, event.ReleaseID(), event.Type(), event.Payload(), event.Metadata()); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	if e.projection != nil {
		e.projection.Apply(event)
	}

	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			slog.Warn("Event sink publish failed",
				logfields.ReleaseID(event.ReleaseID()),
				slog.String("event_type", event.Type()),
				logfields.Error(err))
		}
	}

	return nil
}

// EmitReleaseRequested implements queue.EventEmitter.
func (e *EventEmitter) EmitReleaseRequested(ctx context.Context, releaseID, ref, trigger string) error {
	event, err := eventstore.NewReleaseRequested(releaseID, e.project, ref, trigger)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}

// EmitReleaseCompleted implements queue.EventEmitter.
func (e *EventEmitter) EmitReleaseCompleted(ctx context.Context, releaseID, version string, uploaded, skipped int, duration time.Duration) error {
	event, err := eventstore.NewReleaseCompleted(releaseID, version, uploaded, skipped, duration)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}

// EmitReleaseFailed implements queue.EventEmitter.
func (e *EventEmitter) EmitReleaseFailed(ctx context.Context, releaseID, stage, errorMsg string) error {
	event, err := eventstore.NewReleaseFailed(releaseID, stage, errorMsg)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}

// EmitSourceCheckedOut records a completed checkout.
func (e *EventEmitter) EmitSourceCheckedOut(ctx context.Context, releaseID, ref, commit string, duration time.Duration) error {
	event, err := eventstore.NewSourceCheckedOut(releaseID, ref, commit, duration)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}

// EmitBuildCompleted records the produced distribution files.
func (e *EventEmitter) EmitBuildCompleted(ctx context.Context, releaseID, version string, files []string) error {
	event, err := eventstore.NewBuildCompleted(releaseID, version, files)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}

// EmitArtifactStored records the stored dist bundle.
func (e *EventEmitter) EmitArtifactStored(ctx context.Context, releaseID, bundle string, hashes []string) error {
	event, err := eventstore.NewArtifactStored(releaseID, bundle, hashes)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}

// EmitDistributionPublished records one upload (or skip) on one index.
func (e *EventEmitter) EmitDistributionPublished(ctx context.Context, releaseID, indexName, file string, skipped bool) error {
	event, err := eventstore.NewDistributionPublished(releaseID, indexName, file, skipped)
	if err != nil {
		return err
	}
	return e.EmitEvent(ctx, event)
}
