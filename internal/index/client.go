// Package index uploads distributions to package indexes over the legacy
// upload API and queries simple-index pages.
package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pkgship/internal/artifact"
	"git.home.luguber.info/inful/pkgship/internal/config"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
)

const defaultTimeout = 60 * time.Second

// Client talks to one package index.
type Client struct {
	cfg        config.IndexConfig
	httpClient *http.Client
}

// NewClient creates a client for the given index configuration.
func NewClient(cfg config.IndexConfig) *Client {
	timeout := defaultTimeout
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the configured index name.
func (c *Client) Name() string { return c.cfg.Name }

// SkipExisting reports whether duplicate uploads should be tolerated.
func (c *Client) SkipExisting() bool { return c.cfg.SkipExisting }

// ErrAlreadyExists marks an upload the index rejected because it already has
// the exact file. With skip_existing enabled the publisher treats this as a
// skip, not a failure.
var ErrAlreadyExists = ferrors.NewError(ferrors.CategoryAlreadyExists, "file already exists on index").Build()

// Upload posts one distribution file to the index's legacy upload endpoint.
func (c *Client) Upload(ctx context.Context, dist *artifact.Distribution) error {
	body, contentType, err := buildUploadForm(dist)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return ferrors.PublishError("build upload request").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", contentType)
	c.applyAuth(req)

	slog.Debug("Uploading distribution",
		logfields.Index(c.cfg.Name), logfields.Artifact(filepath.Base(dist.File)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ferrors.NetworkError("upload request failed").
			WithContext("index", c.cfg.Name).
			WithCause(err).
			Retryable().
			Build()
	}
	defer resp.Body.Close() // #nosec G307

	return c.classifyUploadResponse(resp, dist)
}

func (c *Client) classifyUploadResponse(resp *http.Response, dist *artifact.Distribution) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := readBodySnippet(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ferrors.AuthError("index rejected credentials").
			WithContext("index", c.cfg.Name).
			WithContext("status", resp.StatusCode).
			Build()
	case isAlreadyExists(resp.StatusCode, snippet):
		return ErrAlreadyExists
	case resp.StatusCode == http.StatusForbidden:
		return ferrors.AuthError("upload forbidden").
			WithContext("index", c.cfg.Name).
			WithContext("status", resp.StatusCode).
			WithContext("body", snippet).
			Build()
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return ferrors.PublishError("index temporarily unavailable").
			WithContext("index", c.cfg.Name).
			WithContext("status", resp.StatusCode).
			WithContext("body", snippet).
			Retryable().
			Build()
	default:
		return ferrors.PublishError("index rejected upload").
			WithContext("index", c.cfg.Name).
			WithContext("file", filepath.Base(dist.File)).
			WithContext("status", resp.StatusCode).
			WithContext("body", snippet).
			Build()
	}
}

// isAlreadyExists matches the ways indexes report duplicate files: PyPI uses
// 400 with a telltale message, several private indexes use 409.
func isAlreadyExists(status int, body string) bool {
	if status == http.StatusConflict {
		return true
	}
	if status != http.StatusBadRequest {
		return false
	}
	l := strings.ToLower(body)
	return strings.Contains(l, "already exist") || strings.Contains(l, "duplicate") || strings.Contains(l, "file name has already been used")
}

func readBodySnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(data))
}

func (c *Client) applyAuth(req *http.Request) {
	auth := c.cfg.Auth
	if auth == nil {
		return
	}
	switch auth.Type {
	case "token":
		// Legacy upload endpoints take API tokens as basic auth with a
		// reserved username.
		username := auth.Username
		if username == "" {
			username = "__token__"
		}
		req.SetBasicAuth(username, auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	}
}

// buildUploadForm assembles the multipart form for the legacy upload API.
func buildUploadForm(dist *artifact.Distribution) (*bytes.Buffer, string, error) {
	// #nosec G304 - path comes from the collect stage
	data, err := os.ReadFile(dist.File)
	if err != nil {
		return nil, "", ferrors.FileSystemError("read distribution for upload").
			WithContext("file", dist.File).
			WithCause(err).
			Build()
	}

	filetype := "sdist"
	if dist.Kind == artifact.KindWheel {
		filetype = "bdist_wheel"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"name":             dist.Project,
		"version":          dist.Version,
		"filetype":         filetype,
		"pyversion":        dist.PyVersion,
		"metadata_version": "2.1",
		"sha256_digest":    dist.SHA256,
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	part, err := w.CreateFormFile("content", filepath.Base(dist.File))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
