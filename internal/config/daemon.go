package config

// DaemonConfig configures the long-running release service.
type DaemonConfig struct {
	HTTP     HTTPConfig      `yaml:"http"`
	Sync     SyncConfig      `yaml:"sync"`
	Storage  StorageConfig   `yaml:"storage"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
	Events   *EventsConfig   `yaml:"events,omitempty"`
	// WebhookSecret is the shared secret for webhook signature verification.
	// Empty disables signature checks (only sensible on trusted networks).
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// HTTPConfig holds the daemon listen ports.
type HTTPConfig struct {
	WebhookPort int `yaml:"webhook_port"`
	AdminPort   int `yaml:"admin_port"`
}

// SyncConfig controls queue sizing and worker concurrency.
type SyncConfig struct {
	QueueSize          int `yaml:"queue_size,omitempty"`
	ConcurrentReleases int `yaml:"concurrent_releases,omitempty"`
}

// StorageConfig holds persistent state locations.
type StorageConfig struct {
	DataDir string `yaml:"data_dir,omitempty"`
}

// ScheduleConfig enables periodic (cron-like) release builds of the tracked branch.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval,omitempty"` // Go duration, e.g. "24h"
}

// EventsConfig configures NATS fan-out of release lifecycle events.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}
