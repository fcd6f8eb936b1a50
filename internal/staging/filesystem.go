// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"io/fs"
	"log/slog"
)

// DefaultStem is the staging directory base name.
const DefaultStem = ".postcond"

type (
	// Filesystem stages files for one invocation and translates their paths.
	Filesystem interface {
		// MakeFile writes data to a fresh file named like name inside the
		// staging directory, creating the directory on first use. The file
		// is complete and visible under its final name when MakeFile returns.
		MakeFile(name string, data []byte, mode fs.FileMode) (StagedFile, error)
		// CopyFile stages a copy of an existing outside file under its base name.
		CopyFile(outsidePath string) (StagedFile, error)
		// ToInsidePath maps an outside path to the runtime's view.
		ToInsidePath(outside string) (string, error)
		// ToOutsidePath maps a runtime path to the invoking process's view.
		ToOutsidePath(inside string) string
		// Dir returns the staging directory, zero before first use.
		Dir() StagingDirectory
		// Cleanup removes the staging directory unless retention is on.
		// Calling it again, or before anything was staged, is a no-op.
		Cleanup() error
	}

	// StagingDirectory is the per-invocation directory.
	StagingDirectory struct {
		OutsidePath string
		InsidePath  string
		// Suffix is the disambiguation counter: 0 for the bare stem.
		Suffix int
	}

	// StagedFile is one file written into a StagingDirectory.
	StagedFile struct {
		Name        string
		OutsidePath string
		InsidePath  string
		Mode        fs.FileMode
	}

	// Options configures a filesystem.
	Options struct {
		// Root is the outside directory under which the staging directory is
		// created. Empty means os.TempDir(). Ignored by MountedFilesystem.
		Root string
		// Stem is the staging directory base name; empty means DefaultStem.
		Stem string
		// Retain keeps staged files after Cleanup for post-mortem inspection.
		Retain bool
		Logger *slog.Logger
	}
)

// IsZero reports whether the directory has not been created yet.
func (d StagingDirectory) IsZero() bool {
	return d.OutsidePath == ""
}
