// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")
	// ErrContainerNotRunning is returned when the target container does not
	// exist or has no running init process.
	ErrContainerNotRunning = errors.New("container is not running")
	// ErrInvalidEngineType is the sentinel error wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")
)

type (
	// Engine is the subset of a container engine postcond drives.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// BinaryPath returns the resolved CLI path, empty when not installed.
		BinaryPath() string
		// ExecArgs builds the arguments (without the binary) that run command
		// inside a running container.
		ExecArgs(containerName string, command []string, opts ExecOptions) []string
		// ContainerPID returns the host PID of the container's init process.
		ContainerPID(ctx context.Context, containerName string) (int, error)
	}

	// ExecOptions tunes `exec`.
	ExecOptions struct {
		// Interactive keeps stdin attached (-i).
		Interactive bool
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env is passed as -e KEY=VALUE, sorted by key.
		Env map[string]string
		// User runs the command as this user (-u).
		User string
	}

	// EngineType identifies the container engine type.
	EngineType string

	// InvalidEngineTypeError wraps ErrInvalidEngineType.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// EngineNotAvailableError reports a missing engine binary.
	EngineNotAvailableError struct {
		Engine EngineType
		Reason string
	}

	// ContainerNotRunningError wraps ErrContainerNotRunning.
	ContainerNotRunningError struct {
		Name   string
		Status string
		Err    error
	}
)

func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine type %q (valid: docker, podman)", e.Value)
}

func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

// IsValid returns whether the EngineType is docker or podman.
func (t EngineType) IsValid() (bool, []error) {
	switch t {
	case EngineTypeDocker, EngineTypePodman:
		return true, nil
	default:
		return false, []error{&InvalidEngineTypeError{Value: t}}
	}
}

func (t EngineType) String() string { return string(t) }

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

func (e *ContainerNotRunningError) Error() string {
	msg := fmt.Sprintf("container %q is not running", e.Name)
	if e.Status != "" {
		msg += " (status: " + e.Status + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ContainerNotRunningError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrContainerNotRunning}
	}
	return []error{ErrContainerNotRunning, e.Err}
}

// NewEngine returns the engine of the given type. Unlike an auto-detecting
// constructor it never falls back to the other engine: a container's name is
// only meaningful to the engine that runs it.
func NewEngine(typ EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if ok, errs := typ.IsValid(); !ok {
		return nil, errs[0]
	}

	var engine Engine
	switch typ {
	case EngineTypePodman:
		engine = NewPodmanEngine(opts...)
	default:
		engine = NewDockerEngine(opts...)
	}

	if engine.BinaryPath() == "" {
		return nil, &EngineNotAvailableError{Engine: typ, Reason: typ.String() + " was not found on PATH"}
	}
	return engine, nil
}

// ProcRoot returns the host path under which the filesystem of the process
// with the given PID is visible.
func ProcRoot(pid int) string {
	return fmt.Sprintf("/proc/%d/root", pid)
}
