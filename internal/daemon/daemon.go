package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/eventstore"
	"git.home.luguber.info/inful/pkgship/internal/git"
	"git.home.luguber.info/inful/pkgship/internal/index"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/metrics"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/queue"
	"git.home.luguber.info/inful/pkgship/internal/retry"
	"git.home.luguber.info/inful/pkgship/internal/storage"
	"git.home.luguber.info/inful/pkgship/internal/workspace"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Daemon is the long-running release service: it watches for triggers
// (webhooks, schedule, admin API), runs releases through the queue and
// serves status over HTTP.
type Daemon struct {
	config     *config.Config
	configPath string
	status     atomic.Value // Status
	startTime  time.Time
	stopChan   chan struct{}
	mu         sync.RWMutex

	registry *prom.Registry
	recorder *metrics.PrometheusRecorder

	objectStore   *storage.FSStore
	eventStore    eventstore.Store
	projection    *eventstore.ReleaseHistoryProjection
	emitter       *EventEmitter
	natsPublisher *NATSPublisher

	executor      *ReleaseExecutor
	releaseQueue  *queue.ReleaseQueue
	scheduler     *Scheduler
	configWatcher *ConfigWatcher
	httpServer    *HTTPServer
}

// NewDaemon creates a daemon instance. A non-empty configPath enables config
// file watching and hot reload.
func NewDaemon(cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon configuration is required")
	}

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		stopChan:   make(chan struct{}),
		registry:   prom.NewRegistry(),
	}
	d.status.Store(StatusStopped)

	d.recorder = metrics.NewPrometheusRecorder(d.registry)
	d.registry.MustRegister(
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))

	dataDir := cfg.Daemon.Storage.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir
	}

	objectStore, err := storage.NewFSStore(filepath.Join(dataDir, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	d.objectStore = objectStore

	eventStore, err := eventstore.NewSQLiteStore(filepath.Join(dataDir, "events.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}
	d.eventStore = eventStore
	d.projection = eventstore.NewReleaseHistoryProjection(eventStore, 100)
	d.emitter = NewEventEmitter(eventStore, d.projection, cfg.Project.Name)

	if err := d.projection.Rebuild(context.Background()); err != nil {
		// Non-fatal: the projection starts empty and fills from new events.
		slog.Warn("Failed to rebuild release history projection", logfields.Error(err))
	}

	if cfg.Daemon.Events != nil && cfg.Daemon.Events.Enabled {
		natsPublisher, err := NewNATSPublisher(cfg.Daemon.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event fan-out: %w", err)
		}
		d.natsPublisher = natsPublisher
		d.emitter.AddSink(natsPublisher)
	}

	stages, publisher, err := buildReleaseFlow(cfg, dataDir, objectStore, d.recorder)
	if err != nil {
		return nil, err
	}
	d.executor = NewReleaseExecutor(cfg, stages, publisher, d.recorder)
	d.executor.SetEventEmitter(d.emitter)

	d.releaseQueue = queue.NewReleaseQueue(
		cfg.Daemon.Sync.QueueSize, cfg.Daemon.Sync.ConcurrentReleases, d.executor)
	d.releaseQueue.SetRecorder(d.recorder)
	d.releaseQueue.SetEventEmitter(d.emitter)

	d.scheduler, err = NewScheduler()
	if err != nil {
		return nil, err
	}
	d.scheduler.SetEnqueuer(d.releaseQueue)
	if cfg.Daemon.Schedule != nil && cfg.Daemon.Schedule.Enabled {
		interval, err := time.ParseDuration(cfg.Daemon.Schedule.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule interval %q: %w", cfg.Daemon.Schedule.Interval, err)
		}
		if _, err := d.scheduler.SchedulePeriodicRelease(interval); err != nil {
			return nil, err
		}
	}

	webhookHandlers := NewWebhookHandlers(d.releaseQueue, cfg.Daemon.WebhookSecret)
	adminHandlers := NewAdminHandlers(d, d.releaseQueue, d.projection)
	d.httpServer = NewHTTPServer(cfg, webhookHandlers, adminHandlers, d.registry)

	if configPath != "" {
		d.configWatcher, err = NewConfigWatcher(configPath, d)
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
	}

	return d, nil
}

// buildReleaseFlow assembles the pipeline stages and publisher from config.
func buildReleaseFlow(cfg *config.Config, dataDir string, store storage.BundleStore, recorder metrics.Recorder) ([]pipeline.Stage, *index.Publisher, error) {
	workspaceBase := cfg.Build.WorkspaceDir
	if workspaceBase == "" {
		workspaceBase = filepath.Join(dataDir, "workspace")
	}
	ws := workspace.NewPersistentManager(workspaceBase, "working")
	gitClient := git.NewClient().WithBuildConfig(&cfg.Build)

	timeout, err := time.ParseDuration(cfg.Build.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid build timeout %q: %w", cfg.Build.Timeout, err)
	}
	builder := &pipeline.ToolBuilder{
		Tool:    cfg.Build.Tool,
		Args:    cfg.Build.Args,
		Timeout: timeout,
	}

	stages := pipeline.DefaultStages(ws, gitClient, builder, store)
	publisher := index.NewPublisher(cfg.Indexes, retry.FromBuildConfig(cfg.Build), recorder)
	return stages, publisher, nil
}

// Start starts all components and blocks until the context is canceled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.GetStatus())
	}

	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	slog.Info("Starting pkgship daemon", logfields.Project(d.config.Project.Name))

	if err := d.httpServer.Start(ctx); err != nil {
		d.status.Store(StatusError)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	d.releaseQueue.Start(ctx)
	d.scheduler.Start(ctx)

	if d.configWatcher != nil {
		if err := d.configWatcher.Start(ctx); err != nil {
			slog.Error("Failed to start config watcher", logfields.Error(err))
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("Daemon started",
		slog.Int("webhook_port", d.config.Daemon.HTTP.WebhookPort),
		slog.Int("admin_port", d.config.Daemon.HTTP.AdminPort),
		slog.Int("queue_size", d.config.Daemon.Sync.QueueSize),
		slog.Int("workers", d.config.Daemon.Sync.ConcurrentReleases))

	select {
	case <-ctx.Done():
	case <-d.stopChan:
	}

	d.status.Store(StatusStopping)
	slog.Info("Daemon stopping")
	return nil
}

// Stop gracefully shuts down all components in reverse startup order.
func (d *Daemon) Stop(ctx context.Context) error {
	current := d.GetStatus()
	if current == StatusStopped || current == StatusStopping {
		return nil
	}

	d.status.Store(StatusStopping)
	slog.Info("Stopping pkgship daemon")

	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(ctx); err != nil {
			slog.Error("Failed to stop config watcher", logfields.Error(err))
		}
	}

	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			slog.Error("Failed to stop scheduler", logfields.Error(err))
		}
	}

	if d.releaseQueue != nil {
		d.releaseQueue.Stop(ctx)
	}

	if d.httpServer != nil {
		if err := d.httpServer.Stop(ctx); err != nil {
			slog.Error("Failed to stop HTTP server", logfields.Error(err))
		}
	}

	if d.natsPublisher != nil {
		d.natsPublisher.Close()
	}

	if d.eventStore != nil {
		if err := d.eventStore.Close(); err != nil {
			slog.Error("Failed to close event store", logfields.Error(err))
		}
	}

	if d.objectStore != nil {
		if err := d.objectStore.Close(); err != nil {
			slog.Error("Failed to close object store", logfields.Error(err))
		}
	}

	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return nil
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// GetStartTime returns the daemon start time.
func (d *Daemon) GetStartTime() time.Time { return d.startTime }

// GetActiveJobs returns the number of releases currently running.
func (d *Daemon) GetActiveJobs() int { return len(d.releaseQueue.ActiveJobs()) }

// GetQueueLength returns the number of queued releases.
func (d *Daemon) GetQueueLength() int { return d.releaseQueue.Length() }

// ProjectName returns the configured project name.
func (d *Daemon) ProjectName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Project.Name
}

// GetConfig returns the current configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// ReloadConfig applies a new configuration to subsequent releases. Listener
// ports and storage paths require a restart; the config watcher rejects
// those changes before calling this.
func (d *Daemon) ReloadConfig(ctx context.Context, newConfig *config.Config) error {
	dataDir := newConfig.Daemon.Storage.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir
	}

	stages, publisher, err := buildReleaseFlow(newConfig, dataDir, d.objectStore, d.recorder)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.config = newConfig
	d.mu.Unlock()

	d.executor.Reconfigure(newConfig, stages, publisher)

	slog.Info("Configuration applied",
		logfields.Project(newConfig.Project.Name),
		slog.Int("indexes", len(newConfig.Indexes)))
	return nil
}
