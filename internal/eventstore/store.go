package eventstore

import (
	"context"
	"time"
)

// Store is an append-only log of release events. Reads return events in
// append order.
type Store interface {
	Append(ctx context.Context, releaseID, eventType string, payload []byte, metadata map[string]string) error

	// GetByReleaseID returns one release's full event stream.
	GetByReleaseID(ctx context.Context, releaseID string) ([]Event, error)

	// GetRange returns events recorded within [start, end].
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	Close() error
}
