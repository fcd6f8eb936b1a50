// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/postcond/postcond/internal/logging"
	"github.com/postcond/postcond/internal/staging"
	"github.com/postcond/postcond/internal/weaver"
)

const (
	// ScriptName is the staged name of the composed script.
	ScriptName = "postcondition.py"

	// waitDelay bounds how long Execute waits for output pipes after the
	// process was killed on cancellation.
	waitDelay = 5 * time.Second
)

var (
	// ErrLaunch is the sentinel error wrapped by LaunchError.
	ErrLaunch = errors.New("target runtime could not be started")
	// ErrInterrupted is the sentinel error wrapped by InterruptedError.
	ErrInterrupted = errors.New("target runtime was interrupted")
	// ErrEmptyArgv is returned for a launcher that produced no argv.
	ErrEmptyArgv = errors.New("empty argv")
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Option configures a Runner.
	Option func(*Runner)

	// Runner stages, launches and interprets one invocation against one
	// target runtime. A Runner owns its filesystem's staging directory.
	Runner struct {
		kind        Kind
		launcher    Launcher
		fs          staging.Filesystem
		logger      *slog.Logger
		execCommand ExecCommandFunc
	}

	// LaunchError means the process never ran: the binary is missing, not
	// executable, or the launcher could not produce its environment.
	LaunchError struct {
		Argv []string
		Err  error
	}

	// InterruptedError means the caller's context ended while the target
	// runtime was running; the process was killed.
	InterruptedError struct {
		Err error
	}
)

func (e *LaunchError) Error() string {
	if len(e.Argv) == 0 {
		return fmt.Sprintf("%s: %v", ErrLaunch, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrLaunch, e.Argv[0], e.Err)
}

func (e *LaunchError) Unwrap() []error { return []error{ErrLaunch, e.Err} }

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInterrupted, e.Err)
}

func (e *InterruptedError) Unwrap() []error { return []error{ErrInterrupted, e.Err} }

// WithLogger sets the logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(r *Runner) {
		r.execCommand = fn
	}
}

// New creates a Runner. A nil fs means a LocalFilesystem under os.TempDir().
func New(kind Kind, launcher Launcher, fs staging.Filesystem, opts ...Option) *Runner {
	r := &Runner{
		kind:        kind,
		launcher:    launcher,
		fs:          fs,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	if r.fs == nil {
		r.fs = staging.NewLocalFilesystem(staging.Options{Logger: r.logger})
	}
	return r
}

// Kind returns the runner kind.
func (r *Runner) Kind() Kind { return r.kind }

// Launcher returns the launcher.
func (r *Runner) Launcher() Launcher { return r.launcher }

// Filesystem returns the staging filesystem.
func (r *Runner) Filesystem() staging.Filesystem { return r.fs }

// Prologue returns the launcher's bootstrap contribution, if any.
func (r *Runner) Prologue() (entryPointImport, initFragment string) {
	if p, ok := r.launcher.(PrologueProvider); ok {
		return p.Prologue()
	}
	return "", ""
}

// Stage writes the composed script into the staging directory.
func (r *Runner) Stage(script weaver.ComposedScript) (staging.StagedFile, error) {
	staged, err := r.fs.MakeFile(ScriptName, []byte(script.Text), 0o600)
	if err != nil {
		return staging.StagedFile{}, err
	}
	r.logger.Debug("staged script", "outside", staged.OutsidePath, "inside", staged.InsidePath)
	return staged, nil
}

// StagePayload copies an already delivered outside file (typically a zip of
// Python modules) into the staging directory and returns its inside path,
// ready for sys.path.
func (r *Runner) StagePayload(outsidePath string) (string, error) {
	staged, err := r.fs.CopyFile(outsidePath)
	if err != nil {
		return "", err
	}
	r.logger.Debug("staged payload", "source", outsidePath, "inside", staged.InsidePath)
	return staged.InsidePath, nil
}

// BuildArgv asks the launcher for the argv and checks that it loads the
// staged script by its inside path.
func (r *Runner) BuildArgv(script staging.StagedFile) ([]string, error) {
	argv, err := r.launcher.Argv(script)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", describeLauncher(r.launcher), err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyArgv
	}
	if !slices.ContainsFunc(argv, func(arg string) bool { return strings.Contains(arg, script.InsidePath) }) {
		return nil, fmt.Errorf("%w: %s not in %q", ErrArgvMissingScript, script.InsidePath, argv)
	}
	return argv, nil
}

// Execute runs argv and waits for it. A non-zero exit is an Outcome, not an
// error. The error is a *LaunchError when the process could not be started
// and an *InterruptedError when ctx ended first; the Outcome then holds
// whatever output was captured.
func (r *Runner) Execute(ctx context.Context, argv []string) (Outcome, error) {
	if len(argv) == 0 {
		return Outcome{}, &LaunchError{Err: ErrEmptyArgv}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, &InterruptedError{Err: err}
	}

	cmd := r.execCommand(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay

	if p, ok := r.launcher.(EnvProvider); ok {
		extra, err := p.Env()
		if err != nil {
			return Outcome{}, &LaunchError{Argv: argv, Err: err}
		}
		cmd.Env = mergeEnv(cmd.Env, extra)
	}
	if p, ok := r.launcher.(WorkDirProvider); ok {
		if dir := p.WorkDir(); dir != "" {
			cmd.Dir = filepath.Clean(dir)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("executing", "runner", r.kind, "argv", argv, "dir", cmd.Dir)
	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		outcome.ExitCode = ExitCode(exitErr.ExitCode())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, &InterruptedError{Err: ctxErr}
		}
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, &InterruptedError{Err: ctxErr}
		}
		return outcome, &LaunchError{Argv: argv, Err: err}
	}

	r.logger.Info("target runtime exited", "rc", outcome.ExitCode, "duration", outcome.Duration)
	return outcome, nil
}

// ParseResult interprets an Outcome; see ParseResult.
func (r *Runner) ParseResult(outcome Outcome) InvocationResult {
	result := ParseResult(outcome)
	if result.Failed() {
		r.logger.Debug("invocation failed", "message", result.Message(), "rc", outcome.ExitCode)
	}
	return result
}

// Cleanup removes the staging directory. It is idempotent.
func (r *Runner) Cleanup() error {
	return r.fs.Cleanup()
}

// mergeEnv overlays extra on base (os.Environ() when base is nil).
func mergeEnv(base []string, extra map[string]string) []string {
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[name]; !overridden {
			env = append(env, kv)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, k+"="+extra[k])
	}
	return env
}
