package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/pipeline"
)

type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	outcome *Outcome
	err     error
	done    chan string
}

func (f *fakeExecutor) Execute(ctx context.Context, job *ReleaseJob) (*Outcome, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.done != nil {
		defer func() { f.done <- job.ID }()
	}
	return f.outcome, f.err
}

type recordingEmitter struct {
	mu        sync.Mutex
	requested []string
	completed []string
	failed    map[string]string // releaseID -> stage
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{failed: make(map[string]string)}
}

func (e *recordingEmitter) EmitReleaseRequested(ctx context.Context, releaseID, ref, trigger string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requested = append(e.requested, releaseID)
	return nil
}

func (e *recordingEmitter) EmitReleaseCompleted(ctx context.Context, releaseID, version string, uploaded, skipped int, duration time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, releaseID)
	return nil
}

func (e *recordingEmitter) EmitReleaseFailed(ctx context.Context, releaseID, stage, errorMsg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed[releaseID] = stage
	return nil
}

func waitForJob(t *testing.T, done chan string) string {
	t.Helper()
	select {
	case id := <-done:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
		return ""
	}
}

func waitForStatus(t *testing.T, q *ReleaseQueue, id string, want JobStatus) *ReleaseJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := q.JobSnapshot(id); ok && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	exec := &fakeExecutor{outcome: &Outcome{Version: "2.11.1", Uploaded: 2}, done: make(chan string, 1)}
	emitter := newRecordingEmitter()

	q := NewReleaseQueue(10, 1, exec)
	q.SetEventEmitter(emitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	job := &ReleaseJob{ID: "rel-1", Trigger: pipeline.TriggerManual, Ref: "v2.11.1"}
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitForJob(t, exec.done)
	snapshot := waitForStatus(t, q, "rel-1", JobStatusCompleted)
	if snapshot.Version != "2.11.1" {
		t.Errorf("version = %q, want 2.11.1", snapshot.Version)
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.requested) != 1 || len(emitter.completed) != 1 {
		t.Errorf("events: requested=%v completed=%v", emitter.requested, emitter.completed)
	}
}

func TestQueueRecordsFailure(t *testing.T) {
	exec := &fakeExecutor{
		outcome: &Outcome{FailedStage: "collect"},
		err:     errors.New("no distribution files were produced"),
		done:    make(chan string, 1),
	}
	emitter := newRecordingEmitter()

	q := NewReleaseQueue(10, 1, exec)
	q.SetEventEmitter(emitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	if err := q.Enqueue(&ReleaseJob{ID: "rel-2", Trigger: pipeline.TriggerWebhook}); err != nil {
		t.Fatal(err)
	}

	waitForJob(t, exec.done)
	snapshot := waitForStatus(t, q, "rel-2", JobStatusFailed)
	if snapshot.Error == "" {
		t.Error("failed job has no error message")
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.failed["rel-2"] != "collect" {
		t.Errorf("failed stage = %q, want collect", emitter.failed["rel-2"])
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	exec := &fakeExecutor{outcome: &Outcome{}}
	q := NewReleaseQueue(1, 1, exec)
	// Queue not started: jobs stay buffered.

	if err := q.Enqueue(&ReleaseJob{ID: "rel-1"}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.Enqueue(&ReleaseJob{ID: "rel-2"}); err == nil {
		t.Fatal("second enqueue should fail on a full queue")
	}
}

func TestQueueRejectsInvalidJobs(t *testing.T) {
	q := NewReleaseQueue(1, 1, &fakeExecutor{})
	if err := q.Enqueue(nil); err == nil {
		t.Error("nil job should be rejected")
	}
	if err := q.Enqueue(&ReleaseJob{}); err == nil {
		t.Error("job without ID should be rejected")
	}
}

func TestQueueHistoryOrder(t *testing.T) {
	exec := &fakeExecutor{outcome: &Outcome{}, done: make(chan string, 2)}
	q := NewReleaseQueue(10, 1, exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	_ = q.Enqueue(&ReleaseJob{ID: "rel-a"})
	_ = q.Enqueue(&ReleaseJob{ID: "rel-b"})
	waitForJob(t, exec.done)
	waitForJob(t, exec.done)
	waitForStatus(t, q, "rel-b", JobStatusCompleted)

	history := q.History()
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	if history[0].ID != "rel-b" {
		t.Errorf("newest first: got %s", history[0].ID)
	}
}
