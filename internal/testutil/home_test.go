// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func configHomeVar() string {
	switch runtime.GOOS {
	case "windows":
		return "APPDATA"
	case "darwin":
		return "HOME"
	default:
		return "XDG_CONFIG_HOME"
	}
}

func TestSetConfigHome(t *testing.T) {
	envVar := configHomeVar()
	original, hadOriginal := os.LookupEnv(envVar)
	tmpDir := t.TempDir()

	cleanup := SetConfigHome(t, tmpDir)
	if got := os.Getenv(envVar); got != tmpDir {
		t.Errorf("%s = %q, want %q", envVar, got, tmpDir)
	}

	cleanup()

	got, has := os.LookupEnv(envVar)
	if has != hadOriginal || got != original {
		t.Errorf("after cleanup %s = %q (set %v), want %q (set %v)", envVar, got, has, original, hadOriginal)
	}
}

func TestSetConfigHome_WithTCleanup(t *testing.T) {
	envVar := configHomeVar()
	original := os.Getenv(envVar)
	tmpDir := t.TempDir()

	t.Run("subtest", func(t *testing.T) {
		t.Cleanup(SetConfigHome(t, tmpDir))
		if got := os.Getenv(envVar); got != tmpDir {
			t.Errorf("%s = %q, want %q", envVar, got, tmpDir)
		}
	})

	if got := os.Getenv(envVar); got != original {
		t.Errorf("after subtest %s = %q, want %q", envVar, got, original)
	}
}

func TestMustUnsetenv_RestoresValue(t *testing.T) {
	const key = "POSTCOND_TESTUTIL_PROBE"
	t.Cleanup(MustSetenv(t, key, "before"))

	restore := MustUnsetenv(t, key)
	if _, ok := os.LookupEnv(key); ok {
		t.Fatalf("%s still set", key)
	}
	restore()
	if got := os.Getenv(key); got != "before" {
		t.Errorf("%s = %q, want %q", key, got, "before")
	}
}

func TestMustWriteFile_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "manage.py")
	if got := MustWriteFile(t, path, "print()\n"); got != path {
		t.Errorf("MustWriteFile() = %q, want %q", got, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "print()\n" {
		t.Errorf("content = %q", data)
	}
}

func TestContainerParallelism(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"3", 3},
		{"0", min(runtime.GOMAXPROCS(0), 2)},
		{"many", min(runtime.GOMAXPROCS(0), 2)},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(ContainerParallelEnv, tt.value)
			if got := containerParallelism(); got != tt.want {
				t.Errorf("containerParallelism() = %d, want %d", got, tt.want)
			}
		})
	}
}
