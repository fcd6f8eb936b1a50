// SPDX-License-Identifier: MPL-2.0

// Package orchestrator drives one postcondition invocation end to end:
// compose the script, stage it, run it in the target runtime, interpret the
// result and clean up.
//
// Every invocation walks the states INIT, STAGED, EXECUTED and REPORTED, or
// ends in FAILED from any non-terminal state. Exactly one InvocationResult is
// produced per invocation and the runner's staging directory is cleaned up
// exactly once on every path.
package orchestrator
