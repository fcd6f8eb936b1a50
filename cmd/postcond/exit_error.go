// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/postcond/postcond/internal/runner"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE
// handlers. A Silent error has already been reported (the result record is
// on stdout) and is not printed again.
type ExitError struct {
	Code   runner.ExitCode
	Err    error
	Silent bool
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
