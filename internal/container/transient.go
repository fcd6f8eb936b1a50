// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// IsTransientError reports whether err is a container engine hiccup that may
// clear up within a second: a generic engine failure (exit code 125), an OCI
// runtime error, or a refused daemon connection.
//
// Context cancellation and deadline errors are never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 125 {
		return true
	}

	errStr := err.Error()

	if strings.Contains(errStr, "OCI runtime error") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset by peer") {
		return true
	}

	return false
}
