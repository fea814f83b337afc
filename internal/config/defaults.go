package config

// Default build tool invocation: `python -m build` produces an sdist and a
// wheel into the dist directory of the package root.
const DefaultBuildTool = "python"

// DefaultBuildArgs is cloned before use by callers that mutate.
var DefaultBuildArgs = []string{"-m", "build"}

const (
	DefaultDistDir      = "dist"
	DefaultBranch       = "main"
	DefaultBuildTimeout = "10m"
	DefaultIndexTimeout = "60s"

	DefaultWebhookPort = 8180
	DefaultAdminPort   = 8181

	DefaultQueueSize          = 100
	DefaultConcurrentReleases = 1

	DefaultDataDir = "./pkgship-data"

	DefaultEventsSubject = "pkgship.releases"
)

// ApplyDefaults fills zero values with sensible defaults. Idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Project.Branch == "" {
		cfg.Project.Branch = DefaultBranch
	}

	if cfg.Build.Tool == "" {
		cfg.Build.Tool = DefaultBuildTool
		if len(cfg.Build.Args) == 0 {
			cfg.Build.Args = append([]string(nil), DefaultBuildArgs...)
		}
	}
	if cfg.Build.DistDir == "" {
		cfg.Build.DistDir = DefaultDistDir
	}
	if cfg.Build.Timeout == "" {
		cfg.Build.Timeout = DefaultBuildTimeout
	}
	if cfg.Build.RetryBackoff == "" {
		cfg.Build.RetryBackoff = RetryBackoffLinear
	}

	for i := range cfg.Indexes {
		if cfg.Indexes[i].Timeout == "" {
			cfg.Indexes[i].Timeout = DefaultIndexTimeout
		}
	}

	if cfg.Daemon != nil {
		d := cfg.Daemon
		if d.HTTP.WebhookPort == 0 {
			d.HTTP.WebhookPort = DefaultWebhookPort
		}
		if d.HTTP.AdminPort == 0 {
			d.HTTP.AdminPort = DefaultAdminPort
		}
		if d.Sync.QueueSize == 0 {
			d.Sync.QueueSize = DefaultQueueSize
		}
		if d.Sync.ConcurrentReleases == 0 {
			d.Sync.ConcurrentReleases = DefaultConcurrentReleases
		}
		if d.Storage.DataDir == "" {
			d.Storage.DataDir = DefaultDataDir
		}
		if d.Events != nil && d.Events.Subject == "" {
			d.Events.Subject = DefaultEventsSubject
		}
	}
}
