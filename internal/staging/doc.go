// SPDX-License-Identifier: MPL-2.0

// Package staging owns the per-invocation staging directory: it writes the
// files a target runtime needs and translates paths between the invoking
// process's view ("outside") and the target runtime's view ("inside").
//
// LocalFilesystem is the default: outside and inside paths are identical.
// MountedFilesystem serves runtimes with their own mount namespace (a
// container seen through /proc/<pid>/root, a snap's private /tmp): files are
// written below the mount point and handed to the runtime with the mount
// point stripped.
//
// The directory is created lazily on the first MakeFile/CopyFile. Names that
// already exist move to the next numeric suffix (".postcond", ".postcond_1",
// ...), so concurrent invocations under one root never share a directory.
package staging
