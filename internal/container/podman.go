// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"os/exec"
)

var _ Engine = (*PodmanEngine)(nil)

// PodmanEngine implements Engine using the Podman CLI.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	allOpts := append([]BaseCLIEngineOption{WithName(string(EngineTypePodman))}, opts...)
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, allOpts...),
	}
}

// ContainerPID returns the host PID of the container's init process.
func (e *PodmanEngine) ContainerPID(ctx context.Context, containerName string) (int, error) {
	return e.inspectPID(ctx, containerName)
}
