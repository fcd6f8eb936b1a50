// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv,
// MustUnsetenv, SetConfigHome), file fixtures (MustMkdirAll, MustWriteFile)
// and the process-wide ContainerSemaphore for tests that start containers.
package testutil
