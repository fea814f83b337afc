// Package config loads and validates pkgship configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Project Project       `yaml:"project"`
	Build   BuildConfig   `yaml:"build"`
	Indexes []IndexConfig `yaml:"indexes"`
	Daemon  *DaemonConfig `yaml:"daemon,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// Project describes the source repository whose distributions are built and published.
type Project struct {
	Name   string      `yaml:"name"`
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Subdir string      `yaml:"subdir,omitempty"` // package root inside the repository
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig represents authentication configuration for git remotes and indexes.
type AuthConfig struct {
	Type     string `yaml:"type"` // "ssh", "token", "basic"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// IndexConfig identifies a package index publish target.
type IndexConfig struct {
	Name         string      `yaml:"name"`
	URL          string      `yaml:"url"` // legacy upload endpoint, e.g. https://upload.pypi.org/legacy/
	SimpleURL    string      `yaml:"simple_url,omitempty"`
	Auth         *AuthConfig `yaml:"auth,omitempty"`
	SkipExisting bool        `yaml:"skip_existing,omitempty"`
	Timeout      string      `yaml:"timeout,omitempty"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug|info|warn|error
	Format string `yaml:"format,omitempty"` // text|json
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just note it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 - user-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Project: Project{
			Name:   "example-package",
			URL:    "https://github.com/example/example-package.git",
			Branch: "main",
		},
		Build: BuildConfig{
			Tool:    DefaultBuildTool,
			Args:    append([]string(nil), DefaultBuildArgs...),
			DistDir: DefaultDistDir,
			Timeout: "10m",
		},
		Indexes: []IndexConfig{
			{
				Name:         "pypi",
				URL:          "https://upload.pypi.org/legacy/",
				SimpleURL:    "https://pypi.org/simple/",
				SkipExisting: true,
				Auth: &AuthConfig{
					Type:     "token",
					Username: "__token__",
					Token:    "${PYPI_TOKEN}",
				},
			},
		},
		Daemon: &DaemonConfig{
			HTTP: HTTPConfig{
				WebhookPort: 8180,
				AdminPort:   8181,
			},
			Sync: SyncConfig{
				QueueSize:          100,
				ConcurrentReleases: 1,
			},
			Storage: StorageConfig{
				DataDir: "./pkgship-data",
			},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
