package config

import "strings"

// BuildConfig holds distribution build tuning knobs and retry options.
type BuildConfig struct {
	// Tool is the executable invoked to produce distributions (default "python").
	Tool string `yaml:"tool,omitempty"`
	// Args are the tool arguments (default ["-m", "build"]); the dist dir is
	// whatever the tool writes into DistDir relative to the package root.
	Args              []string         `yaml:"args,omitempty"`
	DistDir           string           `yaml:"dist_dir,omitempty"`
	Timeout           string           `yaml:"timeout,omitempty"`
	ShallowDepth      int              `yaml:"shallow_depth,omitempty"`
	WorkspaceDir      string           `yaml:"workspace_dir,omitempty"`
	MaxRetries        int              `yaml:"max_retries,omitempty"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`
	// SkipReadmeCheck disables the markdown long-description render check.
	SkipReadmeCheck bool `yaml:"skip_readme_check,omitempty"`
}

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RetryBackoffFixed):
		return RetryBackoffFixed
	case string(RetryBackoffLinear):
		return RetryBackoffLinear
	case string(RetryBackoffExponential):
		return RetryBackoffExponential
	default:
		return ""
	}
}
