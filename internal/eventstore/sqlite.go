package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// eventsSchema holds the append-only event log. recorded_at is a unix
// timestamp; ordering within a release follows the autoincrement id.
const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	release_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	payload BLOB NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_release_id ON events(release_id);
CREATE INDEX IF NOT EXISTS idx_events_recorded_at ON events(recorded_at);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
`

const eventColumns = "id, release_id, event_type, recorded_at, payload, metadata"

// SQLiteStore persists release events in a SQLite database. The mutex
// serializes writers; modernc.org/sqlite is pure Go and a single connection
// cannot interleave writes safely.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the event database at dbPath.
// ":memory:" gives an ephemeral store for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDatabaseOpenFailed, dbPath, err)
	}
	if _, err := db.Exec(eventsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDatabaseOpenFailed, dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append records one event. Metadata is optional and stored as JSON.
func (s *SQLiteStore) Append(ctx context.Context, releaseID, eventType string, payload []byte, metadata map[string]string) error {
	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata for %s: %v", ErrMarshalPayloadFailed, eventType, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (release_id, event_type, recorded_at, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		releaseID, eventType, time.Now().Unix(), payload, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrEventAppendFailed, releaseID, eventType, err)
	}
	return nil
}

// GetByReleaseID returns a release's events in append order.
func (s *SQLiteStore) GetByReleaseID(ctx context.Context, releaseID string) ([]Event, error) {
	return s.queryEvents(ctx, "release_id = ?", releaseID)
}

// GetRange returns events recorded within [start, end], in append order.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.queryEvents(ctx, "recorded_at >= ? AND recorded_at <= ?", start.Unix(), end.Unix())
}

func (s *SQLiteStore) queryEvents(ctx context.Context, where string, args ...any) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM events WHERE %s ORDER BY id", eventColumns, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventQueryFailed, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventQueryFailed, err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*BaseEvent, error) {
	var (
		e            BaseEvent
		recordedAt   int64
		metadataJSON []byte
	)
	if err := rows.Scan(&e.EventID, &e.EventReleaseID, &e.EventType, &recordedAt, &e.EventPayload, &metadataJSON); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrEventQueryFailed, err)
	}
	e.EventTimestamp = time.Unix(recordedAt, 0)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.EventMetadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrEventQueryFailed, err)
		}
	}
	return &e, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
