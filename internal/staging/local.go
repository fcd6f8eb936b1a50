// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/postcond/postcond/internal/logging"
)

const dirMode fs.FileMode = 0o700

var _ Filesystem = (*LocalFilesystem)(nil)

type (
	// pathMapper translates between outside and inside views.
	pathMapper interface {
		toInside(outside string) (string, error)
		toOutside(inside string) string
	}

	identityMapper struct{}

	// LocalFilesystem stages files where the target runtime sees them at
	// the same paths.
	LocalFilesystem struct {
		opts    Options
		root    string
		mapper  pathMapper
		dir     StagingDirectory
		created bool
	}
)

func (identityMapper) toInside(outside string) (string, error) { return outside, nil }
func (identityMapper) toOutside(inside string) string          { return inside }

// NewLocalFilesystem creates a filesystem rooted at opts.Root (default
// os.TempDir()). Nothing is created until the first file is staged.
func NewLocalFilesystem(opts Options) *LocalFilesystem {
	root := opts.Root
	if root == "" {
		root = os.TempDir()
	}
	return newFilesystem(root, opts, identityMapper{})
}

func newFilesystem(root string, opts Options, mapper pathMapper) *LocalFilesystem {
	if opts.Stem == "" {
		opts.Stem = DefaultStem
	}
	opts.Logger = logging.OrDiscard(opts.Logger)
	return &LocalFilesystem{opts: opts, root: root, mapper: mapper}
}

// Root returns the outside directory under which staging directories are made.
func (l *LocalFilesystem) Root() string { return l.root }

// Retain reports whether Cleanup leaves files in place.
func (l *LocalFilesystem) Retain() bool { return l.opts.Retain }

func (l *LocalFilesystem) Dir() StagingDirectory { return l.dir }

func (l *LocalFilesystem) ToInsidePath(outside string) (string, error) {
	return l.mapper.toInside(outside)
}

func (l *LocalFilesystem) ToOutsidePath(inside string) string {
	return l.mapper.toOutside(inside)
}

func (l *LocalFilesystem) MakeFile(name string, data []byte, mode fs.FileMode) (StagedFile, error) {
	return l.stage(name, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (l *LocalFilesystem) CopyFile(outsidePath string) (StagedFile, error) {
	src, err := os.Open(outsidePath)
	if err != nil {
		return StagedFile{}, &StagingIOError{Op: "open", Path: outsidePath, Err: err}
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return StagedFile{}, &StagingIOError{Op: "stat", Path: outsidePath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return StagedFile{}, &StagingIOError{Op: "copy", Path: outsidePath, Err: fmt.Errorf("not a regular file")}
	}

	return l.stage(filepath.Base(outsidePath), info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

func (l *LocalFilesystem) Cleanup() error {
	if !l.created {
		return nil
	}
	if l.opts.Retain {
		l.opts.Logger.Warn("retaining staged files", "dir", l.dir.OutsidePath)
		l.created = false
		return nil
	}

	if err := os.RemoveAll(l.dir.OutsidePath); err != nil {
		return &StagingIOError{Op: "remove", Path: l.dir.OutsidePath, Err: err}
	}
	l.opts.Logger.Debug("removed staging directory", "dir", l.dir.OutsidePath)
	l.created = false
	return nil
}

// ensureDir creates the staging directory on first use, moving to the next
// suffix while the candidate already exists. mkdir is atomic, so two
// invocations racing for the same name end up in different directories.
func (l *LocalFilesystem) ensureDir() error {
	if l.created {
		return nil
	}

	attempt := 0
	for name := range NamesLike(l.opts.Stem) {
		if attempt >= MaxNameAttempts {
			break
		}
		outside := filepath.Join(l.root, name)
		err := os.Mkdir(outside, dirMode)
		if errors.Is(err, fs.ErrExist) {
			attempt++
			continue
		}
		if err != nil {
			return &StagingIOError{Op: "mkdir", Path: outside, Err: err}
		}

		inside, err := l.mapper.toInside(outside)
		if err != nil {
			_ = os.Remove(outside)
			return &StagingIOError{Op: "translate", Path: outside, Err: err}
		}
		l.dir = StagingDirectory{OutsidePath: outside, InsidePath: inside, Suffix: attempt}
		l.created = true
		l.opts.Logger.Debug("created staging directory", "outside", outside, "inside", inside)
		return nil
	}

	return &StagingIOError{Op: "mkdir", Path: filepath.Join(l.root, l.opts.Stem), Err: ErrNamesExhausted}
}

// stage reserves a free name with O_EXCL, writes the content to a hidden
// temporary file, syncs it and renames it over the reservation.
func (l *LocalFilesystem) stage(name string, mode fs.FileMode, write func(io.Writer) error) (StagedFile, error) {
	if name == "" || name != filepath.Base(name) {
		return StagedFile{}, &StagingIOError{Op: "create", Path: name, Err: fmt.Errorf("invalid file name %q", name)}
	}
	if err := l.ensureDir(); err != nil {
		return StagedFile{}, err
	}

	target, err := l.reserve(name)
	if err != nil {
		return StagedFile{}, err
	}

	if err := l.writeAtomic(target, mode, write); err != nil {
		_ = os.Remove(target)
		return StagedFile{}, err
	}

	inside, err := l.mapper.toInside(target)
	if err != nil {
		return StagedFile{}, &StagingIOError{Op: "translate", Path: target, Err: err}
	}

	l.opts.Logger.Debug("staged file", "name", filepath.Base(target), "outside", target, "inside", inside)
	return StagedFile{Name: filepath.Base(target), OutsidePath: target, InsidePath: inside, Mode: mode}, nil
}

func (l *LocalFilesystem) reserve(name string) (string, error) {
	attempt := 0
	for candidate := range NamesLike(name) {
		if attempt >= MaxNameAttempts {
			break
		}
		path := filepath.Join(l.dir.OutsidePath, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if errors.Is(err, fs.ErrExist) {
			attempt++
			continue
		}
		if err != nil {
			return "", &StagingIOError{Op: "create", Path: path, Err: err}
		}
		if err := f.Close(); err != nil {
			return "", &StagingIOError{Op: "create", Path: path, Err: err}
		}
		return path, nil
	}
	return "", &StagingIOError{Op: "create", Path: filepath.Join(l.dir.OutsidePath, name), Err: ErrNamesExhausted}
}

func (l *LocalFilesystem) writeAtomic(target string, mode fs.FileMode, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return &StagingIOError{Op: "write", Path: target, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &StagingIOError{Op: op, Path: target, Err: err}
	}

	if err := write(tmp); err != nil {
		return fail("write", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &StagingIOError{Op: "write", Path: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return &StagingIOError{Op: "rename", Path: target, Err: err}
	}
	return nil
}
