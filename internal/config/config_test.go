package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkgship.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
project:
  name: pyerrors
  url: https://github.com/fjosw/pyerrors.git
indexes:
  - name: pypi
    url: https://upload.pypi.org/legacy/
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Project.Branch)
	assert.Equal(t, DefaultBuildTool, cfg.Build.Tool)
	assert.Equal(t, DefaultBuildArgs, cfg.Build.Args)
	assert.Equal(t, DefaultDistDir, cfg.Build.DistDir)
	assert.Equal(t, DefaultBuildTimeout, cfg.Build.Timeout)
	assert.Equal(t, RetryBackoffLinear, cfg.Build.RetryBackoff)
	assert.Equal(t, DefaultIndexTimeout, cfg.Indexes[0].Timeout)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PYPI_TOKEN", "pypi-secret")

	path := writeConfig(t, `
project:
  name: pyerrors
  url: https://github.com/fjosw/pyerrors.git
indexes:
  - name: pypi
    url: https://upload.pypi.org/legacy/
    auth:
      type: token
      token: ${TEST_PYPI_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pypi-secret", cfg.Indexes[0].Auth.Token)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsMissingProjectURL(t *testing.T) {
	cfg := &Config{Project: Project{Name: "x"}}
	ApplyDefaults(cfg)
	assert.ErrorContains(t, Validate(cfg), "project url")
}

func TestValidateRejectsDuplicateIndexNames(t *testing.T) {
	cfg := &Config{
		Project: Project{Name: "x", URL: "https://example.com/x.git"},
		Indexes: []IndexConfig{
			{Name: "pypi", URL: "https://upload.pypi.org/legacy/"},
			{Name: "pypi", URL: "https://test.pypi.org/legacy/"},
		},
	}
	ApplyDefaults(cfg)
	assert.ErrorContains(t, Validate(cfg), "duplicate index name")
}

func TestValidateRejectsBadIndexURL(t *testing.T) {
	cfg := &Config{
		Project: Project{Name: "x", URL: "https://example.com/x.git"},
		Indexes: []IndexConfig{{Name: "pypi", URL: "not-a-url"}},
	}
	ApplyDefaults(cfg)
	assert.ErrorContains(t, Validate(cfg), "invalid url")
}

func TestValidateDaemonPorts(t *testing.T) {
	cfg := &Config{
		Project: Project{Name: "x", URL: "https://example.com/x.git"},
		Daemon:  &DaemonConfig{HTTP: HTTPConfig{WebhookPort: 9000, AdminPort: 9000}},
	}
	assert.ErrorContains(t, Validate(cfg), "ports must differ")
}

func TestValidateScheduleInterval(t *testing.T) {
	cfg := &Config{
		Project: Project{Name: "x", URL: "https://example.com/x.git"},
		Daemon: &DaemonConfig{
			HTTP:     HTTPConfig{WebhookPort: 8180, AdminPort: 8181},
			Schedule: &ScheduleConfig{Enabled: true, Interval: "5s"},
		},
	}
	assert.ErrorContains(t, Validate(cfg), "interval too small")
}

func TestValidateAuthTypes(t *testing.T) {
	base := func(auth *AuthConfig) *Config {
		return &Config{Project: Project{Name: "x", URL: "https://example.com/x.git", Auth: auth}}
	}

	assert.NoError(t, Validate(base(&AuthConfig{Type: "token", Token: "t"})))
	assert.NoError(t, Validate(base(&AuthConfig{Type: "basic", Username: "u", Password: "p"})))
	assert.ErrorContains(t, Validate(base(&AuthConfig{Type: "basic", Username: "u"})), "requires username and password")
	assert.ErrorContains(t, Validate(base(&AuthConfig{Type: "magic"})), "unsupported auth type")
}

func TestNormalizeRetryBackoff(t *testing.T) {
	assert.Equal(t, RetryBackoffFixed, NormalizeRetryBackoff(" Fixed "))
	assert.Equal(t, RetryBackoffExponential, NormalizeRetryBackoff("EXPONENTIAL"))
	assert.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("bogus"))
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "project: {}\n")
	err := Init(path, false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, Init(path, true))
	t.Setenv("PYPI_TOKEN", "pypi-example")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "example-package", cfg.Project.Name)
}
