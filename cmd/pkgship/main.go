package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/daemon"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pkgship.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Show version and exit"`

	Build struct {
		Ref  string `arg:"" optional:"" help:"Tag, branch or commit to build (defaults to the configured branch)"`
		Keep bool   `help:"Keep the workspace after the build for inspection"`
	} `cmd:"" help:"Clone, build and check distributions without publishing"`

	Publish struct {
		Dir       string `short:"d" help:"Directory containing distribution files" default:"dist"`
		ReleaseID string `help:"Publish the stored dist bundle of an earlier release instead of a directory"`
	} `cmd:"" help:"Upload existing distribution files to the configured indexes"`

	Release struct {
		Ref string `arg:"" optional:"" help:"Tag, branch or commit to release (defaults to the configured branch)"`
	} `cmd:"" help:"Build and publish in one step"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Daemon struct{} `cmd:"" help:"Run the release service: webhooks, schedule and admin API"`

	Status struct {
		URL string `help:"Admin API base URL" default:"http://localhost:8181"`
	} `cmd:"" help:"Query a running daemon for status and recent releases"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("pkgship"),
		kong.Description("Builds Python distributions from a git repository and publishes them to package indexes."),
		kong.Vars{"version": version.Version})

	errorAdapter := ferrors.NewCLIErrorAdapter(CLI.Verbose, nil)

	switch ctx.Command() {
	case "init":
		setupLogging(config.LoggingConfig{}, CLI.Verbose)
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			errorAdapter.HandleError(err)
		}
		fmt.Printf("Configuration written to %s\n", CLI.Config)
		return

	case "status":
		setupLogging(config.LoggingConfig{}, CLI.Verbose)
		if err := runStatus(CLI.Status.URL); err != nil {
			errorAdapter.HandleError(err)
		}
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		errorAdapter.HandleError(err)
		return
	}
	setupLogging(cfg.Logging, CLI.Verbose)

	switch ctx.Command() {
	case "build", "build <ref>":
		err = runBuild(cfg, CLI.Build.Ref, CLI.Build.Keep)
	case "publish":
		if CLI.Publish.ReleaseID != "" {
			err = runPublishStored(cfg, CLI.Publish.ReleaseID)
		} else {
			err = runPublish(cfg, CLI.Publish.Dir)
		}
	case "release", "release <ref>":
		err = runRelease(cfg, CLI.Release.Ref)
	case "daemon":
		err = runDaemon(cfg, CLI.Config)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		errorAdapter.HandleError(err)
	}
}

// setupLogging configures the default slog logger from config, with the
// verbose flag overriding the configured level.
func setupLogging(cfg config.LoggingConfig, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runDaemon(cfg *config.Config, configPath string) error {
	d, err := daemon.NewDaemon(cfg, configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := d.Start(ctx); err != nil {
		return err
	}
	return d.Stop(context.Background())
}
