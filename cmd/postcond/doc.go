// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the postcond CLI.
//
// `postcond run` is the calling convention: it reads one request (flags, an
// args file or JSON on stdin), runs it through the orchestrator and writes
// exactly one JSON result record to stdout. The other commands inspect what
// a run would do (weave, deps) or manage configuration.
package cmd
