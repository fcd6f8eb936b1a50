// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"path/filepath"
	"strings"
)

var _ Filesystem = (*MountedFilesystem)(nil)

type (
	// MountedFilesystem stages files for a runtime whose root filesystem is
	// visible from outside below Mountpoint (e.g. /proc/<pid>/root). Files
	// land in Mountpoint+InsideRoot; the runtime sees them under InsideRoot.
	MountedFilesystem struct {
		*LocalFilesystem
		Mountpoint string
		InsideRoot string
	}

	mountMapper struct {
		mountpoint string
	}
)

// NewMountedFilesystem creates a filesystem that writes below
// mountpoint+insideRoot. opts.Root is ignored.
func NewMountedFilesystem(mountpoint, insideRoot string, opts Options) *MountedFilesystem {
	mountpoint = filepath.Clean(mountpoint)
	if insideRoot == "" {
		insideRoot = "/tmp"
	}
	insideRoot = filepath.Clean("/" + insideRoot)

	return &MountedFilesystem{
		LocalFilesystem: newFilesystem(filepath.Join(mountpoint, insideRoot), opts, mountMapper{mountpoint: mountpoint}),
		Mountpoint:      mountpoint,
		InsideRoot:      insideRoot,
	}
}

func (m mountMapper) toInside(outside string) (string, error) {
	outside = filepath.Clean(outside)
	if m.mountpoint == "/" {
		return outside, nil
	}
	if outside == m.mountpoint {
		return "/", nil
	}
	rest, ok := strings.CutPrefix(outside, m.mountpoint+string(filepath.Separator))
	if !ok {
		return "", &OutsideMountError{Path: outside, Mountpoint: m.mountpoint}
	}
	return "/" + rest, nil
}

func (m mountMapper) toOutside(inside string) string {
	return filepath.Join(m.mountpoint, filepath.Clean("/"+inside))
}
