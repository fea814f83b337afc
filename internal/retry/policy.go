// Package retry holds the backoff policy applied to git fetches and index
// uploads when they fail transiently.
package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/config"
)

// Policy describes how often and how fast a failed operation is retried.
// Values are fixed at construction.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // retries after the first failure, 0 disables retrying
}

// DefaultPolicy is linear backoff: 1s base, capped at 30s, two retries.
func DefaultPolicy() Policy {
	return Policy{
		Mode:       config.RetryBackoffLinear,
		Initial:    time.Second,
		Max:        30 * time.Second,
		MaxRetries: 2,
	}
}

// NewPolicy overlays the given fields on the default policy. Zero or
// unrecognized values keep the default; Initial is clamped to Max.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromBuildConfig derives a policy from the build section of the
// configuration file. Unparseable durations fall back to defaults.
func FromBuildConfig(cfg config.BuildConfig) Policy {
	initial, _ := time.ParseDuration(cfg.RetryInitialDelay)
	maxDelay, _ := time.ParseDuration(cfg.RetryMaxDelay)
	return NewPolicy(cfg.RetryBackoff, initial, maxDelay, cfg.MaxRetries)
}

// Delay returns the wait before the given retry. retryCount is 1-based;
// anything below 1 waits nothing.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		d = p.Initial * (1 << (retryCount - 1))
	default:
		d = time.Duration(retryCount) * p.Initial
	}
	return min(d, p.Max)
}

// Validate rejects policies that could never schedule a retry correctly.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
