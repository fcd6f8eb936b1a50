// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/postcond/postcond/internal/config"
	"github.com/postcond/postcond/internal/container"
	"github.com/postcond/postcond/internal/issue"
	"github.com/postcond/postcond/internal/orchestrator"
	"github.com/postcond/postcond/internal/runner"
	"github.com/postcond/postcond/internal/staging"
	"github.com/postcond/postcond/internal/weaver"
)

type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	return &cfg, nil
}

// execute runs the command tree with args and returns stdout, stderr and
// the error RunE returned.
func execute(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{cfg: cfg},
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&stderr)
	root.SetErr(&stderr)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StagingRoot = t.TempDir()
	return cfg
}

func decodeRecord(t *testing.T, stdout string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 1 {
		t.Fatalf("stdout has %d lines, want exactly one record:\n%s", len(lines), stdout)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("stdout is not a JSON record: %v\n%s", err, stdout)
	}
	return record
}

func TestRun_FailureWritesOneRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stdin   string
		args    []string
		message string
	}{
		{
			name:    "no postcondition class",
			stdin:   "x = 1\n",
			args:    []string{"run", "-f", "-"},
			message: "no class deriving from PostconditionBase",
		},
		{
			name:    "unknown runner",
			stdin:   testSnippet,
			args:    []string{"run", "-f", "-", "--runner", "ssh"},
			message: "unknown runner",
		},
		{
			name:    "unknown class via args on stdin",
			stdin:   fmt.Sprintf(`{"postcondition": %q, "class": "Missing"}`, testSnippet),
			args:    []string{"run", "--args", "-"},
			message: "class not declared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stdout, _, err := execute(t, testConfig(t), tt.stdin, tt.args...)

			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != 1 || !exitErr.Silent {
				t.Fatalf("error = %v, want a silent exit 1", err)
			}
			record := decodeRecord(t, stdout)
			if record["failed"] != true {
				t.Errorf("failed = %v", record["failed"])
			}
			if msg, _ := record["message"].(string); !strings.Contains(msg, tt.message) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.message)
			}
			if _, ok := record["invocation_id"]; !ok {
				t.Error("record lacks invocation_id")
			}
		})
	}
}

func TestRun_NoSnippetWritesRequestFailure(t *testing.T) {
	t.Parallel()

	stdout, stderr, err := execute(t, testConfig(t), "", "run")
	if !errors.Is(err, ErrNoSnippet) {
		t.Errorf("error = %v, want ErrNoSnippet", err)
	}
	if exitCodeOf(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCodeOf(err))
	}
	record := decodeRecord(t, stdout)
	if record["failed"] != true || record["phase"] != phaseRequest {
		t.Errorf("record = %v", record)
	}
	if !strings.Contains(stderr, "no postcondition snippet") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_MalformedArgsWritesRequestFailure(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, testConfig(t), `{"postcondition": `, "run", "--args", "-")
	if exitCodeOf(err) != 1 {
		t.Errorf("exit code = %d, want 1 (err %v)", exitCodeOf(err), err)
	}
	record := decodeRecord(t, stdout)
	if record["failed"] != true || record["changed"] != false || record["phase"] != phaseRequest {
		t.Errorf("record = %v", record)
	}
}

func TestRun_ConfigError(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{err: errors.New("bad config")},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	root := NewRootCommand(app)
	root.SetArgs([]string{"run", "-f", "x.py"})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(t.Context())
	if err == nil || err.Error() != "bad config" {
		t.Errorf("error = %v", err)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Silent {
		t.Errorf("error = %#v, want a silent ExitError", err)
	}
	record := decodeRecord(t, stdout.String())
	if record["failed"] != true || record["message"] != "bad config" || record["phase"] != phaseConfig {
		t.Errorf("record = %v", record)
	}
	if !strings.Contains(stderr.String(), "configuration") {
		t.Errorf("stderr lacks config guidance: %q", stderr.String())
	}
}

func TestRun_Python(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	t.Parallel()

	snippet := `class Postcondition(PostconditionBase):
    def holds(self):
        return False

    def enforce(self):
        type(self).holds = lambda self: True
`
	stdout, _, err := execute(t, testConfig(t), snippet, "run", "-f", "-", "--runner", "python")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	record := decodeRecord(t, stdout)
	if record["changed"] != true || record["failed"] != false {
		t.Errorf("record = %v", record)
	}

	stdout, _, err = execute(t, testConfig(t), snippet, "run", "-f", "-", "--check")
	if err != nil {
		t.Fatalf("run --check error = %v", err)
	}
	if record := decodeRecord(t, stdout); record["changed"] != true {
		t.Errorf("check mode record = %v, want would-change", record)
	}
}

func TestIssueFor(t *testing.T) {
	t.Parallel()

	failed := func(err error, message string) *orchestrator.Report {
		return &orchestrator.Report{Err: err, Result: runner.Failure(message, nil)}
	}

	tests := []struct {
		name   string
		report *orchestrator.Report
		want   issue.Id
	}{
		{"staging", failed(&staging.StagingIOError{Op: "mkdir", Err: errors.New("EACCES")}, "x"), issue.StagingRootNotWritableId},
		{"no class", failed(weaver.ErrNoPostconditionClass, "x"), issue.PostconditionClassMissingId},
		{"class not found", failed(fmt.Errorf("%w: X", weaver.ErrClassNotFound), "x"), issue.PostconditionClassMissingId},
		{"unknown runner", failed(&runner.UnknownRunnerError{Kind: "ssh"}, "x"), issue.UnknownRunnerId},
		{"container", failed(&container.ContainerNotRunningError{Name: "web", Status: "exited"}, "x"), issue.ContainerNotRunningId},
		{"snap", failed(runner.ErrSnapNotInstalled, "x"), issue.SnapNotInstalledId},
		{"django", failed(runner.ErrDjangoProjectNotFound, "x"), issue.DjangoProjectNotFoundId},
		{"launch", failed(&runner.LaunchError{Argv: []string{"python3"}, Err: exec.ErrNotFound}, "x"), issue.InterpreterNotFoundId},
		{"no result", failed(nil, runner.NoResultMessage+" (exit status 1)"), issue.ResultNotReportedId},
		{"exec not found", &orchestrator.Report{
			Result:  runner.Failure(runner.NoResultMessage+" (exit status 127)", nil),
			Outcome: runner.Outcome{ExitCode: 127},
		}, issue.InterpreterNotFoundId},
		{"malformed", failed(nil, runner.MalformedResultMessage+": bad"), issue.ResultNotReportedId},
		{"recheck", failed(nil, weaver.RecheckFailedMessage), issue.RepairDidNotHoldId},
		{"user exception", failed(nil, "division by zero"), 0},
	}

	for _, tt := range tests {
		if got := issueFor(tt.report); got != tt.want {
			t.Errorf("%s: issueFor() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestExitCodeOf(t *testing.T) {
	t.Parallel()

	if got := exitCodeOf(nil); got != 0 {
		t.Errorf("exitCodeOf(nil) = %d", got)
	}
	if got := exitCodeOf(errors.New("x")); got != 1 {
		t.Errorf("exitCodeOf(plain) = %d", got)
	}
	if got := exitCodeOf(fmt.Errorf("wrapped: %w", &ExitError{Code: 3})); got != 3 {
		t.Errorf("exitCodeOf(ExitError{3}) = %d", got)
	}
}
