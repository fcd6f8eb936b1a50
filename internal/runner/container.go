// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"github.com/postcond/postcond/internal/container"
	"github.com/postcond/postcond/internal/staging"
)

var (
	_ Launcher         = (*ContainerLauncher)(nil)
	_ PrologueProvider = (*ContainerLauncher)(nil)
)

// ContainerLauncher runs the script in an already running container:
// <docker|podman> exec -i <container> <interpreter> <inside path>. Pair it
// with a staging.MountedFilesystem at /proc/<pid>/root.
type ContainerLauncher struct {
	Engine           container.Engine
	Container        string
	Interpreter      string
	User             string
	EntryPointImport string
}

// Argv returns the engine exec command line.
func (c *ContainerLauncher) Argv(script staging.StagedFile) ([]string, error) {
	if script.InsidePath == "" {
		return nil, ErrNoInsidePath
	}
	args := c.Engine.ExecArgs(c.Container,
		[]string{interpreterOrDefault(c.Interpreter), script.InsidePath},
		container.ExecOptions{Interactive: true, User: c.User})
	return append([]string{c.Engine.BinaryPath()}, args...), nil
}

// Prologue returns the configured entry-point import.
func (c *ContainerLauncher) Prologue() (string, string) {
	return c.EntryPointImport, ""
}
