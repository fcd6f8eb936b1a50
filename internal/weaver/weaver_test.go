// SPDX-License-Identifier: MPL-2.0

package weaver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const flagSnippet = `import os

FLAG = os.environ["POSTCOND_TEST_FLAG"]


class Postcondition(PostconditionBase):
    def holds(self):
        return os.path.exists(FLAG)

    def enforce(self):
        open(FLAG, "w").close()
`

func TestCompose_Layout(t *testing.T) {
	t.Parallel()

	w := &Weaver{SysPath: []string{"/tmp/.postcond/deps.zip"}, InitFragment: "import django\ndjango.setup()"}
	script, err := w.Compose(flagSnippet, "", "import postcond_runtime")
	if err != nil {
		t.Fatalf("Compose() error: %v", err)
	}

	if script.ClassName != "Postcondition" {
		t.Errorf("ClassName = %q", script.ClassName)
	}

	lines := strings.Split(script.Text, "\n")
	snippetLines := strings.Split(strings.TrimSuffix(flagSnippet, "\n"), "\n")
	if got := script.SnippetEndLine - script.SnippetStartLine + 1; got != len(snippetLines) {
		t.Fatalf("snippet spans %d lines, want %d", got, len(snippetLines))
	}
	for i, want := range snippetLines {
		if got := lines[script.SnippetStartLine-1+i]; got != want {
			t.Fatalf("line %d = %q, want snippet line %q", script.SnippetStartLine+i, got, want)
		}
	}
	if script.SnippetLine(script.SnippetStartLine+2) != 3 || script.SnippetLine(1) != 0 {
		t.Error("SnippetLine() does not map composed lines back to the snippet")
	}

	prologue := strings.Join(lines[:script.SnippetStartLine-1], "\n")
	for _, want := range []string{
		`__postcond_sys.path.insert(0, "/tmp/.postcond/deps.zip")`,
		"    import postcond_runtime\n    import django\n    django.setup()",
		"class PostconditionBase(object):",
	} {
		if !strings.Contains(prologue, want) {
			t.Errorf("prologue missing %q:\n%s", want, prologue)
		}
	}

	epilogue := strings.Join(lines[script.SnippetEndLine:], "\n")
	for _, want := range []string{"instance = Postcondition()", "check_mode = False", ResultMarker} {
		if !strings.Contains(epilogue, want) {
			t.Errorf("epilogue missing %q", want)
		}
	}
}

func TestCompose_Errors(t *testing.T) {
	t.Parallel()

	var w Weaver
	if _, err := w.Compose("class Helper:\n    pass\n", "", ""); !errors.Is(err, ErrNoPostconditionClass) {
		t.Errorf("Compose() error = %v, want ErrNoPostconditionClass", err)
	}
	if _, err := w.Compose(flagSnippet, "Other", ""); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("Compose() error = %v, want ErrClassNotFound", err)
	}
}

func TestCompose_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	var w Weaver
	snippet := "class P(PostconditionBase):\n    def holds(self):\n        return True"
	script, err := w.Compose(snippet, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if script.SnippetEndLine-script.SnippetStartLine != 2 {
		t.Errorf("snippet lines %d-%d", script.SnippetStartLine, script.SnippetEndLine)
	}
	if !strings.Contains(script.Text, "return True\n\n") {
		t.Error("snippet should be newline-terminated before the epilogue")
	}
}

// The tests below execute composed scripts and need a python3 on PATH.

func requirePython(t *testing.T) string {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not found on PATH")
	}
	return python
}

func runComposed(t *testing.T, script ComposedScript, env ...string) map[string]any {
	t.Helper()

	python := requirePython(t)
	path := filepath.Join(t.TempDir(), "postcondition.py")
	if err := os.WriteFile(path, []byte(script.Text), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, python, path)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("python failed: %v\nstdout:\n%s", err, out)
	}

	var record map[string]any
	found := 0
	for line := range strings.SplitSeq(string(out), "\n") {
		if rest, ok := strings.CutPrefix(line, ResultMarker+" "); ok {
			found++
			if err := json.Unmarshal([]byte(rest), &record); err != nil {
				t.Fatalf("bad result line %q: %v", line, err)
			}
		}
	}
	if found != 1 {
		t.Fatalf("found %d result lines, want 1:\n%s", found, out)
	}
	return record
}

func TestCompose_ExecutesIdempotently(t *testing.T) {
	t.Parallel()

	flag := "POSTCOND_TEST_FLAG=" + filepath.Join(t.TempDir(), "flag")
	var w Weaver
	script, err := w.Compose(flagSnippet, "", "")
	if err != nil {
		t.Fatal(err)
	}

	first := runComposed(t, script, flag)
	if first["changed"] != true || first["failed"] != false {
		t.Errorf("first run = %v, want changed", first)
	}
	second := runComposed(t, script, flag)
	if second["changed"] != false || second["failed"] != false {
		t.Errorf("second run = %v, want unchanged", second)
	}
}

func TestCompose_RecordStartsOwnLine(t *testing.T) {
	t.Parallel()

	snippet := `import os
import sys

FLAG = os.environ["POSTCOND_TEST_FLAG"]


class Postcondition(PostconditionBase):
    def holds(self):
        sys.stdout.write("checking... ")
        return os.path.exists(FLAG)

    def enforce(self):
        open(FLAG, "w").close()
`
	var w Weaver
	script, err := w.Compose(snippet, "", "")
	if err != nil {
		t.Fatal(err)
	}

	record := runComposed(t, script, "POSTCOND_TEST_FLAG="+filepath.Join(t.TempDir(), "flag"))
	if record["changed"] != true || record["failed"] != false {
		t.Errorf("record = %v, want changed", record)
	}
}

func TestCompose_CheckModeDoesNotEnforce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	flagPath := filepath.Join(dir, "flag")
	w := Weaver{CheckMode: true}
	script, err := w.Compose(flagSnippet, "", "")
	if err != nil {
		t.Fatal(err)
	}

	record := runComposed(t, script, "POSTCOND_TEST_FLAG="+flagPath)
	if record["changed"] != true || record["failed"] != false {
		t.Errorf("record = %v", record)
	}
	if _, err := os.Stat(flagPath); !os.IsNotExist(err) {
		t.Error("enforce() ran in check mode")
	}
}

func TestCompose_ReportsFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		snippet     string
		wantMessage string
		wantPhase   string
		wantLine    float64
	}{
		{
			name: "enforce does not take effect",
			snippet: "class P(PostconditionBase):\n" +
				"    def holds(self):\n" +
				"        return False\n" +
				"    def enforce(self):\n" +
				"        pass\n",
			wantMessage: RecheckFailedMessage,
		},
		{
			name: "check raises",
			snippet: "class P(PostconditionBase):\n" +
				"    def holds(self):\n" +
				"        raise RuntimeError('database unreachable')\n",
			wantMessage: "database unreachable",
			wantPhase:   "check",
			wantLine:    3,
		},
		{
			name: "enforce raises",
			snippet: "class P(PostconditionBase):\n" +
				"    def holds(self):\n" +
				"        return False\n" +
				"    def enforce(self):\n" +
				"        raise PermissionError('read-only')\n",
			wantMessage: "read-only",
			wantPhase:   "enforce",
			wantLine:    5,
		},
		{
			name: "constructor raises",
			snippet: "class P(PostconditionBase):\n" +
				"    def __init__(self):\n" +
				"        raise ValueError('bad config')\n",
			wantMessage: "bad config",
			wantPhase:   "instantiate",
			wantLine:    3,
		},
		{
			name:        "no check method",
			snippet:     "class P(PostconditionBase):\n    pass\n",
			wantMessage: "defines none of holds(), check()",
			wantPhase:   "check",
		},
		{
			name: "legacy method names",
			snippet: "class P(PostconditionBase):\n" +
				"    done = False\n" +
				"    def check(self):\n" +
				"        return self.done\n" +
				"    def repair(self):\n" +
				"        self.done = True\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var w Weaver
			script, err := w.Compose(tt.snippet, "", "")
			if err != nil {
				t.Fatal(err)
			}
			record := runComposed(t, script)

			if tt.wantMessage == "" {
				if record["failed"] != false || record["changed"] != true {
					t.Errorf("record = %v, want changed without failure", record)
				}
				return
			}
			if record["failed"] != true {
				t.Fatalf("record = %v, want failed", record)
			}
			if msg, _ := record["message"].(string); !strings.Contains(msg, tt.wantMessage) {
				t.Errorf("message = %q, want %q", msg, tt.wantMessage)
			}
			if tt.wantPhase != "" && record["phase"] != tt.wantPhase {
				t.Errorf("phase = %v, want %s", record["phase"], tt.wantPhase)
			}
			if tt.wantLine != 0 && record["snippet_lineno"] != tt.wantLine {
				t.Errorf("snippet_lineno = %v, want %v", record["snippet_lineno"], tt.wantLine)
			}
		})
	}
}

func TestCompose_BootstrapFailureIsReported(t *testing.T) {
	t.Parallel()

	var w Weaver
	script, err := w.Compose(flagSnippet, "", "import postcond_no_such_module")
	if err != nil {
		t.Fatal(err)
	}

	python := requirePython(t)
	path := filepath.Join(t.TempDir(), "postcondition.py")
	if err := os.WriteFile(path, []byte(script.Text), 0o600); err != nil {
		t.Fatal(err)
	}
	out, _ := exec.Command(python, path).Output()
	if !strings.Contains(string(out), ResultMarker) || !strings.Contains(string(out), `"phase": "initialize"`) {
		t.Errorf("stdout = %s, want an initialize failure record", out)
	}
}
