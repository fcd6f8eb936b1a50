// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/postcond/postcond/internal/config"
	"github.com/postcond/postcond/internal/container"
	"github.com/postcond/postcond/internal/staging"
)

const (
	KindPython    = config.RunnerPython
	KindDjango    = config.RunnerDjango
	KindContainer = config.RunnerContainer
	KindSnap      = config.RunnerSnap
)

var (
	// ErrUnknownRunner is the sentinel error wrapped by UnknownRunnerError.
	ErrUnknownRunner = errors.New("unknown runner")
	// ErrDjangoProjectNotFound is returned when manage.py does not exist.
	ErrDjangoProjectNotFound = errors.New("django project not found")
	// ErrContainerNameRequired is returned when container.name is empty.
	ErrContainerNameRequired = errors.New("container name is required")
	// ErrSnapNameRequired is returned when snap.name is empty.
	ErrSnapNameRequired = errors.New("snap name is required")
	// ErrSnapNotInstalled is returned when the configured snap is missing.
	ErrSnapNotInstalled = errors.New("snap is not installed")
)

// snapInstallRoot is where snapd mounts installed snaps.
const snapInstallRoot = "/snap"

type (
	// Kind selects a runner. It is the configuration's runner name.
	Kind = config.RunnerName

	// BuildOptions carries what a Factory needs.
	BuildOptions struct {
		Config  *config.Config
		Staging staging.Options
		Logger  *slog.Logger
		// RunnerOptions are applied to the built Runner.
		RunnerOptions []Option
		// EngineOptions are applied to the container engine.
		EngineOptions []container.BaseCLIEngineOption
	}

	// Factory builds a Runner from configuration.
	Factory func(ctx context.Context, opts BuildOptions) (*Runner, error)

	// Registry maps runner kinds to factories.
	Registry struct {
		factories map[Kind]Factory
	}

	// UnknownRunnerError wraps ErrUnknownRunner.
	UnknownRunnerError struct {
		Kind  Kind
		Known []Kind
	}
)

func (e *UnknownRunnerError) Error() string {
	known := make([]string, len(e.Known))
	for i, k := range e.Known {
		known[i] = k.String()
	}
	return fmt.Sprintf("unknown runner %q (available: %s)", e.Kind, strings.Join(known, ", "))
}

func (e *UnknownRunnerError) Unwrap() error { return ErrUnknownRunner }

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// DefaultRegistry returns a registry with the python, django, container and
// snap runners.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindPython, pythonFactory)
	r.Register(KindDjango, djangoFactory)
	r.Register(KindContainer, containerFactory)
	r.Register(KindSnap, snapFactory)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(kind Kind, factory Factory) {
	r.factories[kind] = factory
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	return slices.Sorted(maps.Keys(r.factories))
}

// Build creates a Runner of the given kind. A nil opts.Config means
// config.DefaultConfig().
func (r *Registry) Build(ctx context.Context, kind Kind, opts BuildOptions) (*Runner, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, &UnknownRunnerError{Kind: kind, Known: r.Kinds()}
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Staging.Logger == nil {
		opts.Staging.Logger = opts.Logger
	}
	return factory(ctx, opts)
}

func (o BuildOptions) runnerOptions() []Option {
	return append([]Option{WithLogger(o.Logger)}, o.RunnerOptions...)
}

// NewPythonRunner builds the plain-interpreter runner.
func NewPythonRunner(cfg config.PythonConfig, stagingOpts staging.Options, opts ...Option) *Runner {
	launcher := &PythonLauncher{
		Interpreter:      cfg.Interpreter,
		Isolated:         cfg.Isolated,
		EntryPointImport: cfg.EntryPointImport,
	}
	return New(KindPython, launcher, staging.NewLocalFilesystem(stagingOpts), opts...)
}

// NewDjangoRunner builds the manage.py shell runner. The project's manage.py
// must exist.
func NewDjangoRunner(cfg *config.Config, stagingOpts staging.Options, opts ...Option) (*Runner, error) {
	launcher := &DjangoLauncher{
		Python:           cfg.Python.Interpreter,
		ProjectDir:       cfg.Django.ProjectDir,
		ManagePy:         cfg.Django.ManagePy,
		SettingsModule:   cfg.Django.SettingsModule,
		EnvFile:          cfg.Django.EnvFile,
		EntryPointImport: cfg.Python.EntryPointImport,
	}
	if _, err := os.Stat(launcher.ManagePyPath()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDjangoProjectNotFound, err)
	}
	return New(KindDjango, launcher, staging.NewLocalFilesystem(stagingOpts), opts...), nil
}

// NewContainerRunner builds the container runner. The container must be
// running: its init PID locates the filesystem used for staging.
func NewContainerRunner(ctx context.Context, cfg *config.Config, engine container.Engine, stagingOpts staging.Options, opts ...Option) (*Runner, error) {
	if cfg.Container.Name == "" {
		return nil, ErrContainerNameRequired
	}
	pid, err := engine.ContainerPID(ctx, cfg.Container.Name)
	if err != nil {
		return nil, err
	}

	launcher := &ContainerLauncher{
		Engine:           engine,
		Container:        cfg.Container.Name,
		Interpreter:      cfg.Container.Interpreter,
		EntryPointImport: cfg.Python.EntryPointImport,
	}
	fs := staging.NewMountedFilesystem(container.ProcRoot(pid), cfg.Container.InsideTmp, stagingOpts)
	return New(KindContainer, launcher, fs, opts...), nil
}

// NewSnapRunner builds the snap runner.
func NewSnapRunner(cfg *config.Config, stagingOpts staging.Options, opts ...Option) (*Runner, error) {
	if cfg.Snap.Name == "" {
		return nil, ErrSnapNameRequired
	}
	launcher := &SnapLauncher{
		Snap:             cfg.Snap.Name,
		App:              cfg.Snap.App,
		Interpreter:      cfg.Snap.Interpreter,
		EntryPointImport: cfg.Python.EntryPointImport,
	}
	fs := staging.NewMountedFilesystem(SnapMountpoint(cfg.Snap.Name), cfg.Snap.InsideTmp, stagingOpts)
	return New(KindSnap, launcher, fs, opts...), nil
}

func pythonFactory(_ context.Context, o BuildOptions) (*Runner, error) {
	return NewPythonRunner(o.Config.Python, o.Staging, o.runnerOptions()...), nil
}

func djangoFactory(_ context.Context, o BuildOptions) (*Runner, error) {
	return NewDjangoRunner(o.Config, o.Staging, o.runnerOptions()...)
}

func containerFactory(ctx context.Context, o BuildOptions) (*Runner, error) {
	engine, err := container.NewEngine(container.EngineType(o.Config.Container.Engine), o.EngineOptions...)
	if err != nil {
		return nil, err
	}
	return NewContainerRunner(ctx, o.Config, engine, o.Staging, o.runnerOptions()...)
}

func snapFactory(_ context.Context, o BuildOptions) (*Runner, error) {
	if o.Config.Snap.Name != "" {
		if _, err := os.Stat(filepath.Join(snapInstallRoot, o.Config.Snap.Name)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSnapNotInstalled, o.Config.Snap.Name, err)
		}
	}
	return NewSnapRunner(o.Config, o.Staging, o.runnerOptions()...)
}
