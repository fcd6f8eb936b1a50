// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"log/slog"
	"os/exec"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

var _ Engine = (*DockerEngine)(nil)

type (
	// DockerAPI is the part of the Docker Engine API client used here.
	DockerAPI interface {
		ContainerInspect(ctx context.Context, containerID string) (dockercontainer.InspectResponse, error)
		Close() error
	}

	// DockerAPIFactory connects to the Docker Engine API.
	DockerAPIFactory func() (DockerAPI, error)

	// DockerEngine implements Engine using the Docker CLI for exec and the
	// Docker Engine API for inspection.
	DockerEngine struct {
		*BaseCLIEngine
		newAPI DockerAPIFactory
	}
)

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	path, _ := exec.LookPath("docker")
	allOpts := append([]BaseCLIEngineOption{WithName(string(EngineTypeDocker))}, opts...)
	return &DockerEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, allOpts...),
		newAPI:        newDockerAPI,
	}
}

// WithDockerAPI replaces the Engine API connection, e.g. with a fake.
func (e *DockerEngine) WithDockerAPI(factory DockerAPIFactory) *DockerEngine {
	e.newAPI = factory
	return e
}

// ContainerPID inspects the container through the Engine API. When the API
// cannot be reached (remote contexts, rootless sockets the client does not
// know about) it falls back to `docker inspect`.
func (e *DockerEngine) ContainerPID(ctx context.Context, containerName string) (int, error) {
	api, err := e.newAPI()
	if err != nil {
		slog.Debug("docker API unavailable, falling back to CLI inspect", "error", err)
		return e.inspectPID(ctx, containerName)
	}
	defer func() {
		if closeErr := api.Close(); closeErr != nil {
			slog.Debug("close docker API client", "error", closeErr)
		}
	}()

	var pid int
	err = RetryWithBackoff(ctx, pidLookupAttempts, pidLookupBackoff, func(int) (bool, error) {
		info, err := api.ContainerInspect(ctx, containerName)
		if err != nil {
			if IsTransientError(err) {
				return true, err
			}
			return false, &ContainerNotRunningError{Name: containerName, Err: err}
		}
		if info.ContainerJSONBase == nil || info.State == nil {
			return false, &ContainerNotRunningError{Name: containerName}
		}
		pid = info.State.Pid
		return checkState(containerName, pid, string(info.State.Status))
	})
	if err != nil {
		return 0, err
	}
	return pid, nil
}

func newDockerAPI() (DockerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return cli, nil
}
