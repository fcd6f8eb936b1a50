// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	// inspectFormat works for both docker and podman inspect.
	inspectFormat = "{{.State.Pid}} {{.State.Status}}"

	pidLookupAttempts = 3
	pidLookupBackoff  = 200 * time.Millisecond
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the CLI plumbing shared by Docker and Podman.
	BaseCLIEngine struct {
		name        string
		binaryPath  string
		execCommand ExecCommandFunc
	}
)

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the PATH lookup of the engine binary.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// NewBaseCLIEngine creates the shared CLI engine for binaryPath.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the engine name.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the path to the engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// ExecArgs constructs arguments for running a command in a running container.
//
// Generated command: <binary> exec [options] <container> <command...>
func (e *BaseCLIEngine) ExecArgs(containerName string, command []string, opts ExecOptions) []string {
	args := []string{"exec"}

	if opts.Interactive {
		args = append(args, "-i")
	}

	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	args = append(args, containerName)
	args = append(args, command...)

	return args
}

// CreateCommand creates an exec.Cmd for the given engine arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandWithOutput runs the engine and returns its stdout. On failure the
// engine's stderr is folded into the error.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	out, err := e.CreateCommand(ctx, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				return "", fmt.Errorf("%s %s: %w: %s", e.name, args[0], err, stderr)
			}
		}
		return "", fmt.Errorf("%s %s: %w", e.name, args[0], err)
	}
	return string(out), nil
}

// inspectPID resolves the init PID with `<engine> inspect`. A restarting
// container is retried briefly.
func (e *BaseCLIEngine) inspectPID(ctx context.Context, containerName string) (int, error) {
	var pid int
	err := RetryWithBackoff(ctx, pidLookupAttempts, pidLookupBackoff, func(int) (bool, error) {
		out, err := e.RunCommandWithOutput(ctx, "inspect", "--type", "container", "--format", inspectFormat, containerName)
		if err != nil {
			if IsTransientError(err) {
				return true, err
			}
			return false, &ContainerNotRunningError{Name: containerName, Err: err}
		}

		var status string
		pid, status, err = parseInspectOutput(out)
		if err != nil {
			return false, err
		}
		return checkState(containerName, pid, status)
	})
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// checkState decides whether a (pid, status) pair is usable, worth retrying,
// or final.
func checkState(containerName string, pid int, status string) (retry bool, err error) {
	switch {
	case pid > 0 && (status == "running" || status == ""):
		return false, nil
	case status == "restarting":
		return true, &ContainerNotRunningError{Name: containerName, Status: status}
	default:
		return false, &ContainerNotRunningError{Name: containerName, Status: status}
	}
}

func parseInspectOutput(out string) (pid int, status string, err error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, "", fmt.Errorf("unexpected inspect output %q", out)
	}
	pid, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("unexpected inspect output %q: %w", out, err)
	}
	if len(fields) > 1 {
		status = fields[1]
	}
	return pid, status, nil
}
