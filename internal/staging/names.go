// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"iter"
	"path/filepath"
	"strconv"
)

// MaxNameAttempts bounds the number of candidate names tried before staging
// gives up on a collision.
const MaxNameAttempts = 1000

// NamesLike yields name, then name with _1, _2, ... inserted before the
// extension: "postcondition.py", "postcondition_1.py", ... A leading dot is
// part of the stem, so ".postcond" yields ".postcond_1". The sequence is
// unbounded; callers stop after MaxNameAttempts.
func NamesLike(name string) iter.Seq[string] {
	root, ext := splitExt(name)
	return func(yield func(string) bool) {
		if !yield(name) {
			return
		}
		for i := 1; ; i++ {
			if !yield(root + "_" + strconv.Itoa(i) + ext) {
				return
			}
		}
	}
}

func splitExt(name string) (root, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return name[:len(name)-len(ext)], ext
}
