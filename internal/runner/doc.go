// SPDX-License-Identifier: MPL-2.0

// Package runner stages a composed postcondition script for one target
// runtime, runs it there and turns what came back into an InvocationResult.
//
// A Runner pairs a staging.Filesystem with a Launcher. The Launcher knows one
// thing: the argv that makes the target runtime load a staged file by its
// inside path. Everything else a runtime may need (environment, working
// directory, a bootstrap import) is discovered through the optional
// EnvProvider, WorkDirProvider and PrologueProvider interfaces.
//
// Four launchers ship: PythonLauncher, DjangoLauncher, ContainerLauncher and
// SnapLauncher. The Registry builds a Runner for each from configuration.
package runner
