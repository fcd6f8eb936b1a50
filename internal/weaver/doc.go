// SPDX-License-Identifier: MPL-2.0

// Package weaver turns a postcondition snippet into a script the target
// runtime can execute on its own.
//
// The composed script is a prologue (sys.path entries for staged payloads,
// the framework entry-point import and initialization, a fallback
// PostconditionBase binding), the snippet copied verbatim, and an epilogue
// that instantiates the snippet's class, calls holds() and, when it does not
// hold, enforce() followed by holds() again. Whatever happens, the script
// prints exactly one line
//
//	__POSTCOND_RESULT__ {"changed": ..., "failed": ..., ...}
//
// on stdout. Exceptions raised by the snippet are reported with the phase
// they occurred in and a line number relative to the snippet.
package weaver
