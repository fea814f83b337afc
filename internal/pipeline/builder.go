package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"

	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
)

// Builder abstracts how distributions are produced from a source checkout.
// The default ToolBuilder shells out to the configured build frontend
// (`python -m build`); tests inject alternatives without touching stage
// orchestration.
type Builder interface {
	Build(ctx context.Context, sourceDir string) error
}

// ToolBuilder invokes the configured build tool in the source directory.
type ToolBuilder struct {
	Tool    string
	Args    []string
	Timeout time.Duration
}

func (b *ToolBuilder) Build(ctx context.Context, sourceDir string) error {
	if _, err := exec.LookPath(b.Tool); err != nil {
		return ferrors.BuildError("build tool not found in PATH").
			WithContext("tool", b.Tool).
			WithCause(err).
			Build()
	}

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.Tool, b.Args...)
	cmd.Dir = sourceDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Invoking build tool",
		slog.String("tool", b.Tool), slog.Any("args", b.Args), logfields.Path(sourceDir))

	err := cmd.Run()

	if out := stdout.String(); out != "" {
		slog.Debug("build tool stdout", slog.String("output", out))
	}
	if errOut := stderr.String(); errOut != "" {
		slog.Warn("build tool stderr", slog.String("error_output", errOut))
	}

	if err != nil {
		builder := ferrors.BuildError("build tool execution failed").
			WithContext("tool", b.Tool).
			WithCause(err)
		if ctx.Err() == context.DeadlineExceeded {
			builder = ferrors.BuildError("build tool timed out").
				WithContext("tool", b.Tool).
				WithContext("timeout", b.Timeout.String()).
				WithCause(err)
		}
		// The tool may report errors on either stream.
		if output := stderr.String(); output != "" {
			builder = builder.WithContext("output", output)
		} else if output := stdout.String(); output != "" {
			builder = builder.WithContext("output", output)
		}
		return builder.Build()
	}

	return nil
}

// NoopBuilder performs no build; useful in tests when the dist directory is
// prepared by other means.
type NoopBuilder struct{}

func (NoopBuilder) Build(ctx context.Context, sourceDir string) error {
	slog.Debug("NoopBuilder skipping build", logfields.Path(sourceDir))
	return nil
}
