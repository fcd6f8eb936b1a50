// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

func TestLocalFilesystem_LazyDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l := NewLocalFilesystem(Options{Root: root})

	if !l.Dir().IsZero() {
		t.Fatal("Dir() should be zero before first use")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("root should be empty before first use, got %v", entries)
	}

	f, err := l.MakeFile("postcondition.py", []byte("print('hi')\n"), 0o600)
	if err != nil {
		t.Fatalf("MakeFile() error: %v", err)
	}

	wantDir := filepath.Join(root, DefaultStem)
	if l.Dir().OutsidePath != wantDir || l.Dir().InsidePath != wantDir || l.Dir().Suffix != 0 {
		t.Errorf("Dir() = %+v, want %s", l.Dir(), wantDir)
	}
	if f.Name != "postcondition.py" || f.OutsidePath != filepath.Join(wantDir, "postcondition.py") {
		t.Errorf("StagedFile = %+v", f)
	}
	if f.InsidePath != f.OutsidePath {
		t.Errorf("local inside path %q should equal outside %q", f.InsidePath, f.OutsidePath)
	}

	data, err := os.ReadFile(f.OutsidePath)
	if err != nil || string(data) != "print('hi')\n" {
		t.Errorf("content = %q, %v", data, err)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(f.OutsidePath)
		if info.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
	}
}

func TestLocalFilesystem_DirectoryCollision(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, pre := range []string{".postcond", ".postcond_1"} {
		if err := os.Mkdir(filepath.Join(root, pre), 0o700); err != nil {
			t.Fatal(err)
		}
	}

	l := NewLocalFilesystem(Options{Root: root})
	if _, err := l.MakeFile("x.py", nil, 0o600); err != nil {
		t.Fatalf("MakeFile() error: %v", err)
	}
	if got := filepath.Base(l.Dir().OutsidePath); got != ".postcond_2" || l.Dir().Suffix != 2 {
		t.Errorf("Dir() = %+v, want .postcond_2", l.Dir())
	}
}

func TestLocalFilesystem_FileCollision(t *testing.T) {
	t.Parallel()

	l := NewLocalFilesystem(Options{Root: t.TempDir(), Stem: ".run"})
	var names []string
	for i := range 3 {
		f, err := l.MakeFile("postcondition.py", []byte{byte('a' + i)}, 0o644)
		if err != nil {
			t.Fatalf("MakeFile() #%d error: %v", i, err)
		}
		names = append(names, f.Name)
	}

	want := []string{"postcondition.py", "postcondition_1.py", "postcondition_2.py"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
	if filepath.Base(l.Dir().OutsidePath) != ".run" {
		t.Errorf("custom stem ignored: %s", l.Dir().OutsidePath)
	}

	// Only the staged files: no temporaries left behind.
	entries, _ := os.ReadDir(l.Dir().OutsidePath)
	if len(entries) != 3 {
		t.Errorf("staging dir has %d entries, want 3", len(entries))
	}
}

func TestLocalFilesystem_ConcurrentInvocationsDoNotCollide(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	const n = 16

	dirs := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			l := NewLocalFilesystem(Options{Root: root})
			if _, err := l.MakeFile("postcondition.py", []byte("x"), 0o600); err != nil {
				t.Errorf("MakeFile() error: %v", err)
				return
			}
			dirs[i] = l.Dir().OutsidePath
		})
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if seen[d] {
			t.Errorf("directory %s used by two invocations", d)
		}
		seen[d] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct directories, want %d", len(seen), n)
	}
}

func TestLocalFilesystem_CopyFile(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "deps.zip")
	if err := os.WriteFile(src, []byte("PK\x03\x04"), 0o640); err != nil {
		t.Fatal(err)
	}

	l := NewLocalFilesystem(Options{Root: t.TempDir()})
	f, err := l.CopyFile(src)
	if err != nil {
		t.Fatalf("CopyFile() error: %v", err)
	}
	if f.Name != "deps.zip" {
		t.Errorf("Name = %q", f.Name)
	}
	data, _ := os.ReadFile(f.OutsidePath)
	if string(data) != "PK\x03\x04" {
		t.Errorf("content = %q", data)
	}

	_, err = l.CopyFile(filepath.Join(t.TempDir(), "missing.zip"))
	if !errors.Is(err, ErrStagingIO) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("CopyFile(missing) error = %v, want ErrStagingIO and ErrNotExist", err)
	}
}

func TestLocalFilesystem_InvalidName(t *testing.T) {
	t.Parallel()

	l := NewLocalFilesystem(Options{Root: t.TempDir()})
	for _, name := range []string{"", "../escape.py", "sub/dir.py"} {
		if _, err := l.MakeFile(name, nil, 0o600); !errors.Is(err, ErrStagingIO) {
			t.Errorf("MakeFile(%q) error = %v, want ErrStagingIO", name, err)
		}
	}
}

func TestLocalFilesystem_Cleanup(t *testing.T) {
	t.Parallel()

	l := NewLocalFilesystem(Options{Root: t.TempDir()})
	if err := l.Cleanup(); err != nil {
		t.Fatalf("Cleanup() before use = %v", err)
	}

	f, err := l.MakeFile("postcondition.py", []byte("x"), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if _, err := os.Stat(l.Dir().OutsidePath); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("staging dir still exists after Cleanup: %v", err)
	}
	if _, err := os.Stat(f.OutsidePath); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("staged file still exists after Cleanup: %v", err)
	}
	if err := l.Cleanup(); err != nil {
		t.Errorf("second Cleanup() = %v, want no-op", err)
	}
}

func TestLocalFilesystem_Retain(t *testing.T) {
	t.Parallel()

	l := NewLocalFilesystem(Options{Root: t.TempDir(), Retain: true})
	f, err := l.MakeFile("postcondition.py", []byte("x"), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Retain() {
		t.Error("Retain() = false")
	}
	if err := l.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if _, err := os.Stat(f.OutsidePath); err != nil {
		t.Errorf("retained file missing: %v", err)
	}
}

func TestLocalFilesystem_UnwritableRoot(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	root := t.TempDir()
	if err := os.Chmod(root, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(root, 0o700) })

	l := NewLocalFilesystem(Options{Root: root})
	_, err := l.MakeFile("postcondition.py", []byte("x"), 0o600)

	var ioErr *StagingIOError
	if !errors.As(err, &ioErr) || ioErr.Op != "mkdir" {
		t.Fatalf("MakeFile() error = %v, want mkdir StagingIOError", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("error should match fs.ErrPermission: %v", err)
	}
	if !strings.Contains(err.Error(), root) {
		t.Errorf("error should name the root: %v", err)
	}
}

func TestLocalFilesystem_MissingRoot(t *testing.T) {
	t.Parallel()

	l := NewLocalFilesystem(Options{Root: filepath.Join(t.TempDir(), "absent")})
	if _, err := l.MakeFile("x.py", nil, 0o600); !errors.Is(err, ErrStagingIO) {
		t.Errorf("MakeFile() error = %v, want ErrStagingIO", err)
	}
}
