// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"slices"
	"testing"

	dockercontainer "github.com/docker/docker/api/types/container"
)

func TestEngineType_IsValid(t *testing.T) {
	t.Parallel()

	for _, typ := range []EngineType{EngineTypeDocker, EngineTypePodman} {
		if ok, errs := typ.IsValid(); !ok || len(errs) != 0 {
			t.Errorf("%q.IsValid() = %v, %v", typ, ok, errs)
		}
	}

	ok, errs := EngineType("lxc").IsValid()
	if ok || len(errs) != 1 || !errors.Is(errs[0], ErrInvalidEngineType) {
		t.Errorf("IsValid() = %v, %v; want ErrInvalidEngineType", ok, errs)
	}
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine("lxc"); !errors.Is(err, ErrInvalidEngineType) {
		t.Errorf("NewEngine(lxc) error = %v", err)
	}

	engine, err := NewEngine(EngineTypePodman, WithBinaryPath("/usr/bin/podman"))
	if err != nil {
		t.Fatalf("NewEngine(podman) error: %v", err)
	}
	if engine.Name() != "podman" || engine.BinaryPath() != "/usr/bin/podman" {
		t.Errorf("engine = %s at %s", engine.Name(), engine.BinaryPath())
	}

	_, err = NewEngine(EngineTypeDocker, WithBinaryPath(""))
	if !errors.Is(err, ErrEngineNotAvailable) {
		t.Errorf("NewEngine(docker) without binary error = %v, want ErrEngineNotAvailable", err)
	}
}

func TestExecArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")
	tests := []struct {
		name string
		opts ExecOptions
		want []string
	}{
		{
			name: "plain",
			want: []string{"exec", "web", "python3", "/tmp/.postcond/postcondition.py"},
		},
		{
			name: "interactive with env and workdir",
			opts: ExecOptions{
				Interactive: true,
				User:        "app",
				WorkDir:     "/srv",
				Env:         map[string]string{"B": "2", "A": "1"},
			},
			want: []string{
				"exec", "-i", "-u", "app", "-w", "/srv", "-e", "A=1", "-e", "B=2",
				"web", "python3", "/tmp/.postcond/postcondition.py",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := e.ExecArgs("web", []string{"python3", "/tmp/.postcond/postcondition.py"}, tt.opts)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ExecArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcRoot(t *testing.T) {
	t.Parallel()
	if got := ProcRoot(4242); got != "/proc/4242/root" {
		t.Errorf("ProcRoot() = %q", got)
	}
}

func TestPodmanEngine_ContainerPID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stdout     string
		stderr     string
		exitCode   int
		wantPID    int
		wantStatus string
		wantErr    error
	}{
		{name: "running", stdout: "4242 running\n", wantPID: 4242},
		{name: "exited", stdout: "0 exited\n", wantErr: ErrContainerNotRunning, wantStatus: "exited"},
		{name: "missing", stderr: "Error: no such container web", exitCode: 1, wantErr: ErrContainerNotRunning},
		{name: "garbage", stdout: "<no value>\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := &MockCommandRecorder{Stdout: tt.stdout, Stderr: tt.stderr, ExitCode: tt.exitCode}
			engine := NewPodmanEngine(WithBinaryPath("podman"), WithExecCommand(recorder.ContextCommandFunc(t)))

			pid, err := engine.ContainerPID(t.Context(), "web")
			recorder.AssertArgsContain(t, "inspect --type container --format")
			recorder.AssertArgsContain(t, "web")

			switch {
			case tt.wantPID != 0:
				if err != nil || pid != tt.wantPID {
					t.Errorf("ContainerPID() = %d, %v; want %d", pid, err, tt.wantPID)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ContainerPID() error = %v, want %v", err, tt.wantErr)
				}
				var notRunning *ContainerNotRunningError
				if errors.As(err, &notRunning) && notRunning.Status != tt.wantStatus {
					t.Errorf("Status = %q, want %q", notRunning.Status, tt.wantStatus)
				}
			default:
				if err == nil {
					t.Errorf("ContainerPID() = %d, want a parse error", pid)
				}
			}
		})
	}
}

type fakeDockerAPI struct {
	responses []dockercontainer.InspectResponse
	err       error
	calls     int
	closed    bool
}

func (f *fakeDockerAPI) ContainerInspect(_ context.Context, _ string) (dockercontainer.InspectResponse, error) {
	if f.err != nil {
		return dockercontainer.InspectResponse{}, f.err
	}
	resp := f.responses[min(f.calls, len(f.responses)-1)]
	f.calls++
	return resp, nil
}

func (f *fakeDockerAPI) Close() error {
	f.closed = true
	return nil
}

func inspectResponse(pid int, status string) dockercontainer.InspectResponse {
	state := &dockercontainer.State{Running: status == "running", Pid: pid}
	switch status {
	case "running":
		state.Status = "running"
	case "restarting":
		state.Status = "restarting"
	case "exited":
		state.Status = "exited"
	}
	return dockercontainer.InspectResponse{
		ContainerJSONBase: &dockercontainer.ContainerJSONBase{State: state},
	}
}

func TestDockerEngine_ContainerPIDViaAPI(t *testing.T) {
	t.Parallel()

	api := &fakeDockerAPI{responses: []dockercontainer.InspectResponse{
		inspectResponse(0, "restarting"),
		inspectResponse(77, "running"),
	}}
	recorder := &MockCommandRecorder{}
	engine := NewDockerEngine(WithBinaryPath("docker"), WithExecCommand(recorder.ContextCommandFunc(t))).
		WithDockerAPI(func() (DockerAPI, error) { return api, nil })

	pid, err := engine.ContainerPID(t.Context(), "web")
	if err != nil || pid != 77 {
		t.Fatalf("ContainerPID() = %d, %v; want 77", pid, err)
	}
	if api.calls != 2 {
		t.Errorf("inspect calls = %d, want 2 (restarting is retried)", api.calls)
	}
	if !api.closed {
		t.Error("API client was not closed")
	}
	recorder.AssertInvocationCount(t, 0)
}

func TestDockerEngine_ContainerPIDStopped(t *testing.T) {
	t.Parallel()

	api := &fakeDockerAPI{responses: []dockercontainer.InspectResponse{inspectResponse(0, "exited")}}
	engine := NewDockerEngine(WithBinaryPath("docker")).
		WithDockerAPI(func() (DockerAPI, error) { return api, nil })

	if _, err := engine.ContainerPID(t.Context(), "web"); !errors.Is(err, ErrContainerNotRunning) {
		t.Errorf("ContainerPID() error = %v, want ErrContainerNotRunning", err)
	}
}

func TestDockerEngine_ContainerPIDFallsBackToCLI(t *testing.T) {
	t.Parallel()

	recorder := &MockCommandRecorder{Stdout: "99 running"}
	engine := NewDockerEngine(WithBinaryPath("docker"), WithExecCommand(recorder.ContextCommandFunc(t))).
		WithDockerAPI(func() (DockerAPI, error) { return nil, errors.New("no socket") })

	pid, err := engine.ContainerPID(t.Context(), "web")
	if err != nil || pid != 99 {
		t.Fatalf("ContainerPID() = %d, %v; want 99", pid, err)
	}
	recorder.AssertInvocationCount(t, 1)
}
