// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"errors"
	"fmt"
	"strconv"
)

// ExitCodeSignaled is reported for a process that was killed by a signal.
const ExitCodeSignaled ExitCode = -1

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems, plus
	// ExitCodeSignaled. The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range.
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255, or -1 for a signal)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// IsValid returns whether the ExitCode is in the valid range,
// and a list of validation errors if it is not.
func (c ExitCode) IsValid() (bool, []error) {
	if c < ExitCodeSignaled || c > 255 {
		return false, []error{&InvalidExitCodeError{Value: c}}
	}
	return true, nil
}

// IsSuccess returns true if the exit code indicates successful execution.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// IsSignaled returns true if the process was killed by a signal.
func (c ExitCode) IsSignaled() bool { return c == ExitCodeSignaled }

// IsLaunchFailure returns true for the codes docker, podman and shells use
// when the command inside could not be run at all: 125 (engine error),
// 126 (not executable) and 127 (not found).
func (c ExitCode) IsLaunchFailure() bool { return c >= 125 && c <= 127 }

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
