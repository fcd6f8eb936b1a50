// SPDX-License-Identifier: MPL-2.0

package runner

import "time"

// Outcome is what one target-runtime process left behind.
type Outcome struct {
	ExitCode ExitCode
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports a zero exit status.
func (o Outcome) Success() bool {
	return o.ExitCode.IsSuccess()
}
