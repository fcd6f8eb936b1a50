// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/postcond/postcond/internal/config"
	"github.com/postcond/postcond/internal/logging"
	"github.com/postcond/postcond/internal/orchestrator"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reads configuration and streams through it.
	App struct {
		Config ConfigProvider
		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer

		orchestratorOpts []orchestrator.Option

		// Global flag values.
		verbose bool
		cfgFile string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
		// OrchestratorOptions are applied to every orchestrator built by run.
		OrchestratorOptions []orchestrator.Option
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}

	return &App{
		Config:           deps.Config,
		stdin:            deps.Stdin,
		stdout:           deps.Stdout,
		stderr:           deps.Stderr,
		orchestratorOpts: deps.OrchestratorOptions,
	}
}

// loadConfig loads configuration honoring --config.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.cfgFile})
}

// logger builds the stderr logger for cfg.
func (a *App) logger(cfg *config.Config) *slog.Logger {
	return logging.New(a.stderr, logging.Options{
		Level:   cfg.Log.Level,
		Verbose: a.verbose,
		Prefix:  config.AppName,
	})
}

// newOrchestrator builds an orchestrator for cfg with the injected options.
func (a *App) newOrchestrator(cfg *config.Config, logger *slog.Logger) *orchestrator.Orchestrator {
	opts := append([]orchestrator.Option{orchestrator.WithLogger(logger)}, a.orchestratorOpts...)
	return orchestrator.New(cfg, opts...)
}
