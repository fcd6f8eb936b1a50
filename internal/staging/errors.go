// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"errors"
	"fmt"
)

var (
	// ErrStagingIO marks every failure to create, write or remove staged files.
	ErrStagingIO = errors.New("staging I/O failure")
	// ErrOutsideMount is returned when a path is not below the mount point.
	ErrOutsideMount = errors.New("path is outside the mount point")
	// ErrNamesExhausted is returned when MaxNameAttempts candidates all exist.
	ErrNamesExhausted = errors.New("no free name")
)

type (
	// StagingIOError describes a failed staging operation. It matches both
	// ErrStagingIO and the underlying cause under errors.Is.
	StagingIOError struct {
		Op   string
		Path string
		Err  error
	}

	// OutsideMountError wraps ErrOutsideMount.
	OutsideMountError struct {
		Path       string
		Mountpoint string
	}
)

func (e *StagingIOError) Error() string {
	return fmt.Sprintf("staging: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StagingIOError) Unwrap() []error {
	return []error{ErrStagingIO, e.Err}
}

func (e *OutsideMountError) Error() string {
	return fmt.Sprintf("%s is not below mount point %s", e.Path, e.Mountpoint)
}

func (e *OutsideMountError) Unwrap() error { return ErrOutsideMount }
