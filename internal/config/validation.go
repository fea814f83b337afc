package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate validates the complete configuration structure.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateProject(); err != nil {
		return err
	}
	if err := cv.validateBuild(); err != nil {
		return err
	}
	if err := cv.validateIndexes(); err != nil {
		return err
	}
	return cv.validateDaemon()
}

func (cv *configurationValidator) validateProject() error {
	p := cv.config.Project
	if p.URL == "" {
		return errors.New("project url is required")
	}
	if p.Name == "" {
		return errors.New("project name is required")
	}
	if p.Auth != nil {
		if err := validateAuth(p.Auth, "project"); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateBuild() error {
	b := cv.config.Build
	if b.Timeout != "" {
		if _, err := time.ParseDuration(b.Timeout); err != nil {
			return fmt.Errorf("invalid build timeout %q: %w", b.Timeout, err)
		}
	}
	if b.RetryBackoff != "" && NormalizeRetryBackoff(string(b.RetryBackoff)) == "" {
		return fmt.Errorf("invalid retry_backoff %q (expected fixed|linear|exponential)", b.RetryBackoff)
	}
	if b.RetryInitialDelay != "" {
		if _, err := time.ParseDuration(b.RetryInitialDelay); err != nil {
			return fmt.Errorf("invalid retry_initial_delay %q: %w", b.RetryInitialDelay, err)
		}
	}
	if b.RetryMaxDelay != "" {
		if _, err := time.ParseDuration(b.RetryMaxDelay); err != nil {
			return fmt.Errorf("invalid retry_max_delay %q: %w", b.RetryMaxDelay, err)
		}
	}
	if b.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	if strings.Contains(b.DistDir, "..") {
		return fmt.Errorf("dist_dir must stay inside the package root: %q", b.DistDir)
	}
	return nil
}

func (cv *configurationValidator) validateIndexes() error {
	names := make(map[string]bool)
	for _, idx := range cv.config.Indexes {
		if idx.Name == "" {
			return errors.New("index name cannot be empty")
		}
		if names[idx.Name] {
			return fmt.Errorf("duplicate index name: %s", idx.Name)
		}
		names[idx.Name] = true

		if idx.URL == "" {
			return fmt.Errorf("index %s: url is required", idx.Name)
		}
		u, err := url.Parse(idx.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("index %s: invalid url %q", idx.Name, idx.URL)
		}
		if idx.Timeout != "" {
			if _, err := time.ParseDuration(idx.Timeout); err != nil {
				return fmt.Errorf("index %s: invalid timeout %q: %w", idx.Name, idx.Timeout, err)
			}
		}
		if idx.Auth != nil {
			if err := validateAuth(idx.Auth, "index "+idx.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if d == nil {
		return nil
	}
	if d.HTTP.WebhookPort == d.HTTP.AdminPort {
		return fmt.Errorf("webhook and admin ports must differ (both %d)", d.HTTP.AdminPort)
	}
	for _, port := range []int{d.HTTP.WebhookPort, d.HTTP.AdminPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port: %d", port)
		}
	}
	if d.Schedule != nil && d.Schedule.Enabled {
		if d.Schedule.Interval == "" {
			return errors.New("schedule interval is required when schedule is enabled")
		}
		iv, err := time.ParseDuration(d.Schedule.Interval)
		if err != nil {
			return fmt.Errorf("invalid schedule interval %q: %w", d.Schedule.Interval, err)
		}
		if iv < time.Minute {
			return fmt.Errorf("schedule interval too small: %s (minimum 1m)", iv)
		}
	}
	if d.Events != nil && d.Events.Enabled && d.Events.NATSURL == "" {
		return errors.New("events nats_url is required when events are enabled")
	}
	return nil
}

func validateAuth(auth *AuthConfig, scope string) error {
	switch auth.Type {
	case "token":
		if auth.Token == "" {
			return fmt.Errorf("%s: token auth requires a token", scope)
		}
	case "basic":
		if auth.Username == "" || auth.Password == "" {
			return fmt.Errorf("%s: basic auth requires username and password", scope)
		}
	case "ssh":
		if auth.KeyPath == "" {
			return fmt.Errorf("%s: ssh auth requires key_path", scope)
		}
	case "":
		return fmt.Errorf("%s: auth type is required", scope)
	default:
		return fmt.Errorf("%s: unsupported auth type %q", scope, auth.Type)
	}
	return nil
}
