package eventstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreAppendAndGet(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Append(ctx, "rel-1", TypeReleaseRequested, []byte(`{"project":"pyerrors"}`), map[string]string{"source": "test"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "rel-1", TypeBuildCompleted, []byte(`{"version":"2.11.1"}`), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "rel-2", TypeReleaseRequested, []byte(`{}`), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := store.GetByReleaseID(ctx, "rel-1")
	if err != nil {
		t.Fatalf("GetByReleaseID failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type() != TypeReleaseRequested || events[1].Type() != TypeBuildCompleted {
		t.Errorf("events out of order: %s, %s", events[0].Type(), events[1].Type())
	}
	if events[0].Metadata()["source"] != "test" {
		t.Errorf("metadata lost: %v", events[0].Metadata())
	}
}

func TestSQLiteStoreGetRange(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Append(ctx, "rel-1", TypeReleaseRequested, []byte(`{}`), nil); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetRange(ctx, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events in range, want 1", len(events))
	}

	events, err = store.GetRange(ctx, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events in past range, want 0", len(events))
	}
}

func TestSQLiteStoreErrorClassification(t *testing.T) {
	t.Run("open fails for missing parent directory", func(t *testing.T) {
		_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing", "events.db"))
		if !errors.Is(err, ErrDatabaseOpenFailed) {
			t.Fatalf("expected ErrDatabaseOpenFailed, got %v", err)
		}
	})

	t.Run("append after close", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		store.Close()
		err = store.Append(context.Background(), "rel-1", TypeReleaseRequested, []byte(`{}`), nil)
		if !errors.Is(err, ErrEventAppendFailed) {
			t.Fatalf("expected ErrEventAppendFailed, got %v", err)
		}
	})

	t.Run("query after close", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		store.Close()
		_, err = store.GetByReleaseID(context.Background(), "rel-1")
		if !errors.Is(err, ErrEventQueryFailed) {
			t.Fatalf("expected ErrEventQueryFailed, got %v", err)
		}
	})
}

func TestProjectionRebuildReportsStoreFailure(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	projection := NewReleaseHistoryProjection(store, 10)
	err = projection.Rebuild(context.Background())
	if !errors.Is(err, ErrProjectionRebuildFailed) {
		t.Fatalf("expected ErrProjectionRebuildFailed, got %v", err)
	}
}

func TestTypedEventPayloads(t *testing.T) {
	requested, err := NewReleaseRequested("rel-1", "pyerrors", "v2.11.1", "webhook")
	if err != nil {
		t.Fatal(err)
	}
	if requested.Type() != TypeReleaseRequested || requested.ReleaseID() != "rel-1" {
		t.Errorf("unexpected event identity: %s/%s", requested.Type(), requested.ReleaseID())
	}

	published, err := NewDistributionPublished("rel-1", "pypi", "pyerrors-2.11.1.tar.gz", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(published.Payload()) == 0 {
		t.Error("payload is empty")
	}
}
