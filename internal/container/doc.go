// SPDX-License-Identifier: MPL-2.0

// Package container talks to the Docker or Podman engine that hosts a
// running target container.
//
// postcond never creates containers. It needs two things from the engine: the
// argv that runs a command inside an existing container (`exec -i`), and the
// host PID of the container's init process, whose /proc/<pid>/root exposes
// the container's filesystem for staging.
//
// DockerEngine resolves PIDs through the Docker Engine API and falls back to
// the CLI when the API socket is unreachable; PodmanEngine uses the CLI.
package container
