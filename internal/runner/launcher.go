// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"errors"
	"fmt"

	"github.com/postcond/postcond/internal/staging"
)

// DefaultInterpreter is used when a launcher has no interpreter configured.
const DefaultInterpreter = "python3"

var (
	// ErrNoInsidePath is returned by a Launcher given a file that was never staged.
	ErrNoInsidePath = errors.New("staged file has no inside path")
	// ErrArgvMissingScript is returned when a launcher's argv does not
	// reference the staged script.
	ErrArgvMissingScript = errors.New("argv does not load the staged script")
)

type (
	// Launcher turns a staged script into the argv that makes the target
	// runtime execute it. Argv must refer to the script by its inside path.
	Launcher interface {
		Argv(script staging.StagedFile) ([]string, error)
	}

	// EnvProvider is implemented by launchers that need extra environment
	// variables on the spawned process.
	EnvProvider interface {
		Env() (map[string]string, error)
	}

	// WorkDirProvider is implemented by launchers that must start in a
	// particular directory.
	WorkDirProvider interface {
		WorkDir() string
	}

	// PrologueProvider is implemented by launchers that contribute to the
	// composed script's bootstrap: the import that makes the framework (and
	// usually PostconditionBase) available, and an initialisation fragment
	// run after it.
	PrologueProvider interface {
		Prologue() (entryPointImport, initFragment string)
	}

	// PythonLauncher runs the script with a plain interpreter:
	// <interpreter> [-I] <inside path>.
	PythonLauncher struct {
		Interpreter string
		// Isolated passes -I (ignore PYTHON* variables and user site-packages).
		Isolated         bool
		EntryPointImport string
	}
)

var (
	_ Launcher         = (*PythonLauncher)(nil)
	_ PrologueProvider = (*PythonLauncher)(nil)
)

// Argv returns the interpreter command line.
func (p *PythonLauncher) Argv(script staging.StagedFile) ([]string, error) {
	if script.InsidePath == "" {
		return nil, ErrNoInsidePath
	}
	argv := []string{interpreterOrDefault(p.Interpreter)}
	if p.Isolated {
		argv = append(argv, "-I")
	}
	return append(argv, script.InsidePath), nil
}

// Prologue returns the configured entry-point import.
func (p *PythonLauncher) Prologue() (string, string) {
	return p.EntryPointImport, ""
}

func interpreterOrDefault(interpreter string) string {
	if interpreter == "" {
		return DefaultInterpreter
	}
	return interpreter
}

// describeLauncher names a launcher in logs and errors.
func describeLauncher(l Launcher) string {
	return fmt.Sprintf("%T", l)
}
