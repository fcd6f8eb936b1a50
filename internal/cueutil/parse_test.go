// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Task: {
	postcondition: string
	runner?:       "python" | "django" | "container" | "snap"
	check_mode:    bool | *false
	sys_path?:     [...string]
}
`

type testTask struct {
	Postcondition string   `json:"postcondition"`
	Runner        string   `json:"runner,omitempty"`
	CheckMode     bool     `json:"check_mode"`
	SysPath       []string `json:"sys_path,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		data        string
		opts        []Option
		wantErr     string
		wantRunner  string
		wantCheck   bool
		wantSysPath int
	}{
		{
			name:       "valid with defaults",
			data:       `postcondition: "class P: pass"` + "\n" + `runner: "django"`,
			wantRunner: "django",
		},
		{
			name:        "explicit values",
			data:        `postcondition: "x", check_mode: true, sys_path: ["/a", "/b"]`,
			wantCheck:   true,
			wantSysPath: 2,
		},
		{
			name:    "disallowed runner",
			data:    `postcondition: "x", runner: "ssh"`,
			opts:    []Option{WithFilename("task.cue")},
			wantErr: "runner",
		},
		{
			name:    "wrong element type reports index path",
			data:    `postcondition: "x", sys_path: ["/a", 3]`,
			opts:    []Option{WithFilename("task.cue")},
			wantErr: "sys_path[1]",
		},
		{
			name:    "missing required field",
			data:    `runner: "python"`,
			wantErr: "postcondition",
		},
		{
			name:    "syntax error",
			data:    `postcondition: "x`,
			opts:    []Option{WithFilename("broken.cue")},
			wantErr: "broken.cue",
		},
		{
			name:    "size limit",
			data:    `postcondition: "` + strings.Repeat("x", 64) + `"`,
			opts:    []Option{WithMaxFileSize(16)},
			wantErr: "exceeds maximum 16 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := ParseAndDecode[testTask]([]byte(testSchema), []byte(tt.data), "#Task", tt.opts...)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q should contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAndDecode() error: %v", err)
			}
			if result.Value.Runner != tt.wantRunner {
				t.Errorf("Runner = %q, want %q", result.Value.Runner, tt.wantRunner)
			}
			if result.Value.CheckMode != tt.wantCheck {
				t.Errorf("CheckMode = %v, want %v", result.Value.CheckMode, tt.wantCheck)
			}
			if len(result.Value.SysPath) != tt.wantSysPath {
				t.Errorf("SysPath = %v, want %d entries", result.Value.SysPath, tt.wantSysPath)
			}
		})
	}
}

func TestDecodeMap_NonConcrete(t *testing.T) {
	t.Parallel()

	const optionalSchema = `
#Config: {
	runner?:  string
	timeout?: string
}
`
	m, err := DecodeMap([]byte(optionalSchema), []byte(`runner: "snap"`), "#Config", WithConcrete(false))
	if err != nil {
		t.Fatalf("DecodeMap() error: %v", err)
	}
	if m["runner"] != "snap" {
		t.Errorf("runner = %v, want snap", m["runner"])
	}
	if _, ok := m["timeout"]; ok {
		t.Error("unset optional field should not be decoded")
	}
}

func TestParseAndDecode_UnknownDefinition(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecode[testTask]([]byte(testSchema), []byte(`postcondition: "x"`), "#Missing")
	if err == nil || !strings.Contains(err.Error(), "#Missing") {
		t.Errorf("error = %v, want schema definition error", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"timeout"}, "timeout"},
		{[]string{"python", "sys_path", "1"}, "python.sys_path[1]"},
		{[]string{"container", "name"}, "container.name"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
