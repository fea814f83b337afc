package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	appcfg "git.home.luguber.info/inful/pkgship/internal/config"
)

func TestClassifyGitError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want any
	}{
		{"auth", errors.New("authentication required"), new(*AuthError)},
		{"not found", errors.New("repository does not exist"), new(*NotFoundError)},
		{"rate limit", errors.New("429 too many requests"), new(*RateLimitError)},
		{"timeout", errors.New("dial tcp: i/o timeout"), new(*NetworkTimeoutError)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyGitError("clone", "https://example.com/repo.git", tc.err)
			if !errors.As(got, tc.want) {
				t.Errorf("classifyGitError(%v) = %v, want %T", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsPermanentGitError(t *testing.T) {
	if !isPermanentGitError(&AuthError{Op: "clone", URL: "u", Err: errors.New("denied")}) {
		t.Error("auth error should be permanent")
	}
	if !isPermanentGitError(&RefNotFoundError{Ref: "v1.0.0"}) {
		t.Error("missing ref should be permanent")
	}
	if isPermanentGitError(&NetworkTimeoutError{Op: "clone", URL: "u", Err: errors.New("i/o timeout")}) {
		t.Error("network timeout should be retryable")
	}
	if isPermanentGitError(nil) {
		t.Error("nil error should not be permanent")
	}
}

func TestGetAuthentication(t *testing.T) {
	c := NewClient()

	auth, err := c.getAuthentication(&appcfg.AuthConfig{Type: "token", Token: "secret"})
	if err != nil {
		t.Fatalf("token auth failed: %v", err)
	}
	if auth == nil {
		t.Fatal("token auth returned nil method")
	}

	if _, err := c.getAuthentication(&appcfg.AuthConfig{Type: "token"}); err == nil {
		t.Error("token auth without token should fail")
	}

	auth, err = c.getAuthentication(&appcfg.AuthConfig{Type: "basic", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("basic auth failed: %v", err)
	}
	if auth == nil {
		t.Fatal("basic auth returned nil method")
	}

	if _, err := c.getAuthentication(&appcfg.AuthConfig{Type: "basic", Username: "u"}); err == nil {
		t.Error("basic auth without password should fail")
	}

	auth, err = c.getAuthentication(&appcfg.AuthConfig{Type: "none"})
	if err != nil || auth != nil {
		t.Errorf("none auth: got (%v, %v), want (nil, nil)", auth, err)
	}

	if _, err := c.getAuthentication(&appcfg.AuthConfig{Type: "kerberos"}); err == nil {
		t.Error("unknown auth type should fail")
	}
}

func TestSourceDir(t *testing.T) {
	checkout := t.TempDir()
	if err := os.MkdirAll(filepath.Join(checkout, "pkg", "lib"), 0750); err != nil {
		t.Fatal(err)
	}

	dir, err := SourceDir(checkout, appcfg.Project{Name: "p"})
	if err != nil {
		t.Fatalf("SourceDir without subdir failed: %v", err)
	}
	if dir != checkout {
		t.Errorf("Got %q, want %q", dir, checkout)
	}

	dir, err = SourceDir(checkout, appcfg.Project{Name: "p", Subdir: "pkg/lib"})
	if err != nil {
		t.Fatalf("SourceDir with subdir failed: %v", err)
	}
	if dir != filepath.Join(checkout, "pkg", "lib") {
		t.Errorf("Got %q", dir)
	}

	if _, err := SourceDir(checkout, appcfg.Project{Name: "p", Subdir: "../outside"}); err == nil {
		t.Error("escaping subdir should be rejected")
	}

	if _, err := SourceDir(checkout, appcfg.Project{Name: "p", Subdir: "missing"}); err == nil {
		t.Error("missing subdir should be rejected")
	}
}

func TestWithRetryGivesUpOnPermanentError(t *testing.T) {
	cfg := &appcfg.BuildConfig{MaxRetries: 3, RetryBackoff: appcfg.RetryBackoffFixed, RetryInitialDelay: "1ms", RetryMaxDelay: "5ms"}
	c := NewClient().WithBuildConfig(cfg)

	calls := 0
	_, err := c.withRetry("checkout", "proj", func() (CheckoutResult, error) {
		calls++
		return CheckoutResult{}, &AuthError{Op: "clone", URL: "u", Err: errors.New("denied")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error retried %d times, want 1 call", calls)
	}
}

func TestWithRetryRetriesTransientError(t *testing.T) {
	cfg := &appcfg.BuildConfig{MaxRetries: 2, RetryBackoff: appcfg.RetryBackoffFixed, RetryInitialDelay: "1ms", RetryMaxDelay: "5ms"}
	c := NewClient().WithBuildConfig(cfg)

	calls := 0
	result, err := c.withRetry("checkout", "proj", func() (CheckoutResult, error) {
		calls++
		if calls < 3 {
			return CheckoutResult{}, &NetworkTimeoutError{Op: "clone", URL: "u", Err: errors.New("i/o timeout")}
		}
		return CheckoutResult{Path: "/tmp/p", Commit: "abc123"}, nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
	if result.Commit != "abc123" {
		t.Errorf("got commit %q", result.Commit)
	}
}
