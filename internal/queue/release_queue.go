// Package queue manages queued release jobs and the worker pool that runs them.
package queue

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/metrics"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
)

// JobStatus represents the current status of a release job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ReleaseJob represents a single queued release.
type ReleaseJob struct {
	ID          string           `json:"id"`
	Trigger     pipeline.Trigger `json:"trigger"`
	Ref         string           `json:"ref,omitempty"`
	Status      JobStatus        `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Duration    time.Duration    `json:"duration,omitempty"`
	Version     string           `json:"version,omitempty"`
	Error       string           `json:"error,omitempty"`

	cancel context.CancelFunc
}

// Outcome summarizes a finished release execution. The file list lives in
// the BuildCompleted event and the release summary, not here.
type Outcome struct {
	Version     string
	Uploaded    int
	Skipped     int
	FailedStage string
}

// Executor runs one release end to end (pipeline plus publish).
type Executor interface {
	Execute(ctx context.Context, job *ReleaseJob) (*Outcome, error)
}

// EventEmitter abstracts release lifecycle event emission so the queue does
// not depend on a daemon implementation.
type EventEmitter interface {
	EmitReleaseRequested(ctx context.Context, releaseID, ref, trigger string) error
	EmitReleaseCompleted(ctx context.Context, releaseID, version string, uploaded, skipped int, duration time.Duration) error
	EmitReleaseFailed(ctx context.Context, releaseID, stage, errorMsg string) error
}

// ReleaseQueue manages queued release jobs with a fixed worker pool.
type ReleaseQueue struct {
	jobs        chan *ReleaseJob
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*ReleaseJob
	history     []*ReleaseJob
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	executor    Executor

	recorder metrics.Recorder
	emitter  EventEmitter
}

// NewReleaseQueue creates a release queue with the given capacity and worker count.
func NewReleaseQueue(maxSize, workers int, executor Executor) *ReleaseQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if executor == nil {
		panic("NewReleaseQueue: executor is required")
	}
	return &ReleaseQueue{
		jobs:        make(chan *ReleaseJob, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*ReleaseJob),
		history:     make([]*ReleaseJob, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		executor:    executor,
		recorder:    metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder (optional).
func (q *ReleaseQueue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// SetEventEmitter injects a release event emitter (optional).
func (q *ReleaseQueue) SetEventEmitter(emitter EventEmitter) {
	q.emitter = emitter
}

// Start begins processing jobs with the configured number of workers.
func (q *ReleaseQueue) Start(ctx context.Context) {
	slog.Info("Starting release queue", slog.Int("workers", q.workers), slog.Int("max_size", q.maxSize))
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop gracefully shuts down the queue, canceling active jobs.
func (q *ReleaseQueue) Stop(_ context.Context) {
	close(q.stopChan)

	q.mu.Lock()
	for _, job := range q.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.mu.Unlock()

	q.wg.Wait()
}

// Length returns the current queue length.
func (q *ReleaseQueue) Length() int {
	return len(q.jobs)
}

// Enqueue adds a release job to the queue.
func (q *ReleaseQueue) Enqueue(job *ReleaseJob) error {
	if job == nil {
		return stdErrors.New("job cannot be nil")
	}
	if job.ID == "" {
		return stdErrors.New("job ID is required")
	}

	job.Status = JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	select {
	case q.jobs <- job:
		q.recorder.SetQueueDepth(len(q.jobs))
		return nil
	default:
		return stdErrors.New("release queue is full")
	}
}

// ActiveJobs returns a copy of the currently running jobs.
func (q *ReleaseQueue) ActiveJobs() []*ReleaseJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]*ReleaseJob, 0, len(q.active))
	for _, job := range q.active {
		cp := *job
		active = append(active, &cp)
	}
	return active
}

// JobSnapshot returns a copy of a job (active first, then history).
func (q *ReleaseQueue) JobSnapshot(id string) (*ReleaseJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if job, ok := q.active[id]; ok {
		cp := *job
		return &cp, true
	}
	for _, job := range q.history {
		if job.ID == id {
			cp := *job
			return &cp, true
		}
	}
	return nil, false
}

// History returns finished jobs, newest first.
func (q *ReleaseQueue) History() []*ReleaseJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*ReleaseJob, 0, len(q.history))
	for i := len(q.history) - 1; i >= 0; i-- {
		cp := *q.history[i]
		out = append(out, &cp)
	}
	return out
}

func (q *ReleaseQueue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job != nil {
				q.recorder.SetQueueDepth(len(q.jobs))
				q.processJob(ctx, job, workerID)
			}
		}
	}
}

func (q *ReleaseQueue) processJob(ctx context.Context, job *ReleaseJob, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	defer cancel()

	startTime := time.Now()
	q.mu.Lock()
	job.StartedAt = &startTime
	job.Status = JobStatusRunning
	q.active[job.ID] = job
	q.mu.Unlock()

	slog.Info("Release job started",
		logfields.JobID(job.ID), logfields.JobType(string(job.Trigger)),
		logfields.Ref(job.Ref), logfields.Worker(workerID))

	if q.emitter != nil {
		if err := q.emitter.EmitReleaseRequested(jobCtx, job.ID, job.Ref, string(job.Trigger)); err != nil {
			slog.Warn("Failed to emit ReleaseRequested event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}

	outcome, err := q.executor.Execute(jobCtx, job)
	duration := q.markJobCompleted(job, outcome, err)

	if q.emitter == nil {
		return
	}
	if err != nil {
		stage := ""
		if outcome != nil {
			stage = outcome.FailedStage
		}
		if emitErr := q.emitter.EmitReleaseFailed(ctx, job.ID, stage, err.Error()); emitErr != nil {
			slog.Warn("Failed to emit ReleaseFailed event", logfields.JobID(job.ID), logfields.Error(emitErr))
		}
		return
	}
	if emitErr := q.emitter.EmitReleaseCompleted(ctx, job.ID, outcome.Version, outcome.Uploaded, outcome.Skipped, duration); emitErr != nil {
		slog.Warn("Failed to emit ReleaseCompleted event", logfields.JobID(job.ID), logfields.Error(emitErr))
	}
}

func (q *ReleaseQueue) markJobCompleted(job *ReleaseJob, outcome *Outcome, err error) time.Duration {
	endTime := time.Now()
	q.mu.Lock()
	job.CompletedAt = &endTime
	if job.StartedAt != nil {
		job.Duration = endTime.Sub(*job.StartedAt)
	}
	if outcome != nil {
		job.Version = outcome.Version
	}
	delete(q.active, job.ID)
	q.addToHistory(job)
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = JobStatusCompleted
	}
	duration := job.Duration
	q.mu.Unlock()

	slog.Info("Release job finished",
		logfields.JobID(job.ID), logfields.JobStatus(string(job.Status)),
		logfields.DurationMS(float64(duration.Milliseconds())))
	return duration
}

// addToHistory appends a finished job, trimming the oldest entries. Caller
// holds the lock.
func (q *ReleaseQueue) addToHistory(job *ReleaseJob) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		q.history = q.history[len(q.history)-q.historySize:]
	}
}
