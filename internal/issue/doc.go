// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling for the postcond CLI.
//
// ActionableError attaches an operation, a resource and remediation hints to an
// error; the issue catalog holds longer Markdown guidance for the failure
// classes an operator is most likely to hit (missing interpreter, unwritable
// staging root, container not running, ...), rendered with glamour.
package issue
