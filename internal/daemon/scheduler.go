package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/queue"
)

// Scheduler wraps gocron for periodic release builds of the tracked branch.
type Scheduler struct {
	scheduler gocron.Scheduler
	enqueuer  interface {
		Enqueue(job *queue.ReleaseJob) error
	}
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{scheduler: s}, nil
}

// SetEnqueuer injects the release queue.
func (s *Scheduler) SetEnqueuer(e interface{ Enqueue(job *queue.ReleaseJob) error }) { s.enqueuer = e }

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// SchedulePeriodicRelease schedules a recurring release of the configured
// branch. Returns the job ID for later management.
func (s *Scheduler) SchedulePeriodicRelease(interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.executeScheduledRelease),
		gocron.WithName("scheduled-release"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic release job: %w", err)
	}

	return job.ID().String(), nil
}

// executeScheduledRelease is called by gocron on each tick.
func (s *Scheduler) executeScheduledRelease() {
	if s.enqueuer == nil {
		slog.Error("Scheduler enqueuer not set")
		return
	}

	jobID := fmt.Sprintf("scheduled-%d", time.Now().Unix())
	slog.Info("Enqueueing scheduled release", logfields.JobID(jobID))

	job := &queue.ReleaseJob{
		ID:        jobID,
		Trigger:   pipeline.TriggerScheduled,
		CreatedAt: time.Now(),
	}

	if err := s.enqueuer.Enqueue(job); err != nil {
		slog.Error("Failed to enqueue scheduled release",
			logfields.JobID(jobID),
			logfields.Error(err))
	}
}
