// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetConfigHome points the user configuration lookup at dir and returns a
// cleanup function restoring the previous environment.
//
//   - Windows: sets APPDATA
//   - macOS: sets HOME (config lives under Library/Application Support)
//   - Linux and others: sets XDG_CONFIG_HOME and HOME
//
// Usage:
//
//	t.Cleanup(testutil.SetConfigHome(t, t.TempDir()))
func SetConfigHome(t testing.TB, dir string) func() {
	t.Helper()

	switch runtime.GOOS {
	case "windows":
		return MustSetenv(t, "APPDATA", dir)
	case "darwin":
		return MustSetenv(t, "HOME", dir)
	default:
		restoreXDG := MustSetenv(t, "XDG_CONFIG_HOME", dir)
		restoreHome := MustSetenv(t, "HOME", dir)
		return func() {
			restoreHome()
			restoreXDG()
		}
	}
}
