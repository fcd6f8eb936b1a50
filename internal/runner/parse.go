// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"strings"

	"github.com/postcond/postcond/internal/weaver"
)

const (
	// NoResultMessage is the message of a result synthesised for a process
	// that printed no record.
	NoResultMessage = "target runtime exited without reporting a result"
	// MalformedResultMessage prefixes the message of a result synthesised
	// for a record that did not parse.
	MalformedResultMessage = "target runtime reported a malformed result"

	// maxStderrInMessage caps how much stderr is folded into a message.
	maxStderrInMessage = 2048
)

// ParseResult extracts the result record from an Outcome.
//
// The last line starting with the result marker wins. Without one, the last
// line holding a bare JSON object is tried. A record must match the result
// schema; anything else yields a failed result carrying stdout, stderr and
// rc so the operator can see what happened.
func ParseResult(outcome Outcome) InvocationResult {
	line, marked := findRecord(outcome.Stdout)
	if line != "" {
		result, err := DecodeResult([]byte(line))
		if err == nil {
			return result
		}
		if marked {
			return synthesise(outcome, fmt.Sprintf("%s: %v", MalformedResultMessage, err))
		}
	}

	message := NoResultMessage
	if !outcome.Success() {
		message = fmt.Sprintf("%s (exit status %s)", NoResultMessage, outcome.ExitCode)
		if outcome.ExitCode.IsSignaled() {
			message = NoResultMessage + " (killed by signal)"
		}
		if stderr := strings.TrimSpace(outcome.Stderr); stderr != "" {
			message += ": " + tail(stderr, maxStderrInMessage)
		}
	}
	return synthesise(outcome, message)
}

// findRecord returns the candidate record line and whether it carried the
// marker.
func findRecord(stdout string) (string, bool) {
	var bare string
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if i := strings.LastIndex(line, weaver.ResultMarker); i >= 0 {
			return strings.TrimSpace(line[i+len(weaver.ResultMarker):]), true
		}
		if bare == "" && strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			bare = line
		}
	}
	return bare, false
}

func synthesise(outcome Outcome, message string) InvocationResult {
	return Failure(message, map[string]any{
		"stdout": outcome.Stdout,
		"stderr": outcome.Stderr,
		"rc":     int(outcome.ExitCode),
	})
}

// tail keeps the last n bytes of s, on a line boundary when possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return "..." + s
}
