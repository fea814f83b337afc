package git

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/retry"
)

// Rate-limited remotes get a longer backoff than plain timeouts.
const (
	multRateLimit      = 3.0
	multNetworkTimeout = 1.0
)

// withRetry wraps a checkout operation with retry logic based on build configuration.
func (c *Client) withRetry(op, projectName string, fn func() (CheckoutResult, error)) (CheckoutResult, error) {
	if c.buildCfg == nil || c.buildCfg.MaxRetries <= 0 {
		return fn()
	}
	pol := retry.FromBuildConfig(*c.buildCfg)

	var lastErr error
	for attempt := 0; attempt <= pol.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying git operation",
				slog.String("operation", op), logfields.Project(projectName), slog.Int("attempt", attempt))
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isPermanentGitError(err) {
			slog.Error("permanent git error",
				slog.String("operation", op), logfields.Project(projectName), logfields.Error(err))
			return CheckoutResult{}, err
		}
		if attempt == pol.MaxRetries {
			break
		}
		delay := pol.Delay(attempt + 1)
		if errors.As(err, new(*RateLimitError)) {
			delay = time.Duration(float64(delay) * multRateLimit)
		} else if errors.As(err, new(*NetworkTimeoutError)) {
			delay = time.Duration(float64(delay) * multNetworkTimeout)
		}
		time.Sleep(delay)
	}
	return CheckoutResult{}, fmt.Errorf("git %s failed after retries: %w", op, lastErr)
}
