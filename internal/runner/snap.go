// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"path/filepath"

	"mvdan.cc/sh/v3/syntax"

	"github.com/postcond/postcond/internal/staging"
)

// SnapPrivateTmpRoot is where snapd keeps each snap's private /tmp on the host.
const SnapPrivateTmpRoot = "/tmp/snap-private-tmp"

var (
	_ Launcher         = (*SnapLauncher)(nil)
	_ PrologueProvider = (*SnapLauncher)(nil)
)

// SnapLauncher runs the script inside a snap's confinement:
// snap run --shell <snap.app> -c '<interpreter> <inside path>'.
// Pair it with a staging.MountedFilesystem at SnapMountpoint(Snap).
type SnapLauncher struct {
	// Binary is the snap CLI; empty means "snap".
	Binary           string
	Snap             string
	App              string
	Interpreter      string
	EntryPointImport string
}

// Argv returns the snap command line. The shell command is quoted for POSIX sh.
func (s *SnapLauncher) Argv(script staging.StagedFile) ([]string, error) {
	if script.InsidePath == "" {
		return nil, ErrNoInsidePath
	}
	interpreter, err := syntax.Quote(interpreterOrDefault(s.Interpreter), syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("quote interpreter: %w", err)
	}
	path, err := syntax.Quote(script.InsidePath, syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("quote script path: %w", err)
	}

	binary := s.Binary
	if binary == "" {
		binary = "snap"
	}
	return []string{binary, "run", "--shell", s.Command(), "-c", interpreter + " " + path}, nil
}

// Command returns the snap command name: <snap> or <snap>.<app>.
func (s *SnapLauncher) Command() string {
	if s.App == "" || s.App == s.Snap {
		return s.Snap
	}
	return s.Snap + "." + s.App
}

// Prologue returns the configured entry-point import.
func (s *SnapLauncher) Prologue() (string, string) {
	return s.EntryPointImport, ""
}

// SnapMountpoint returns the host directory whose tmp/ the snap sees as
// /tmp. Nothing else is mapped, so the inside root must stay below /tmp.
func SnapMountpoint(snap string) string {
	return filepath.Join(SnapPrivateTmpRoot, "snap."+snap)
}
