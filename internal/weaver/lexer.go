// SPDX-License-Identifier: MPL-2.0

package weaver

import (
	"iter"
	"strings"
)

type logicalLine struct {
	// text has string literal contents and comments removed.
	text string
	// line is the 1-based physical line the statement starts on.
	line int
}

// logicalLines yields Python logical lines: physical lines joined across
// open brackets and backslash continuations, with comments and the contents
// of string literals (including triple-quoted ones spanning lines) blanked
// out so that keywords inside strings are never mistaken for statements.
func logicalLines(src string) iter.Seq[logicalLine] {
	return func(yield func(logicalLine) bool) {
		var (
			lex   lexer
			buf   strings.Builder
			start int
			depth int
		)

		for i, physical := range strings.Split(src, "\n") {
			lineNo := i + 1
			wasInTriple := lex.inTriple()
			stripped := lex.strip(strings.TrimSuffix(physical, "\r"))

			if buf.Len() == 0 && !wasInTriple {
				start = lineNo
			}
			depth += bracketDelta(stripped)

			continued := strings.HasSuffix(strings.TrimRight(physical, " \t\r"), "\\")
			buf.WriteString(strings.TrimSuffix(strings.TrimRight(stripped, " \t"), "\\"))
			buf.WriteByte(' ')

			if depth > 0 || continued || lex.inTriple() {
				continue
			}
			depth = 0

			if text := buf.String(); strings.TrimSpace(text) != "" {
				if !yield(logicalLine{text: text, line: start}) {
					return
				}
			}
			buf.Reset()
		}

		if text := buf.String(); strings.TrimSpace(text) != "" {
			yield(logicalLine{text: text, line: start})
		}
	}
}

type lexer struct {
	quote string // open string delimiter, "" when outside a string
}

func (l *lexer) inTriple() bool {
	return len(l.quote) == 3
}

// strip returns line with comments removed and every string literal reduced
// to its delimiters. Single-quoted strings never span physical lines.
func (l *lexer) strip(line string) string {
	var out strings.Builder
	for i := 0; i < len(line); {
		if l.quote != "" {
			switch {
			case line[i] == '\\':
				i += 2
			case strings.HasPrefix(line[i:], l.quote):
				out.WriteString(l.quote)
				i += len(l.quote)
				l.quote = ""
			default:
				i++
			}
			continue
		}

		switch c := line[i]; {
		case c == '#':
			return out.String()
		case strings.HasPrefix(line[i:], `"""`), strings.HasPrefix(line[i:], `'''`):
			l.quote = line[i : i+3]
			out.WriteString(l.quote)
			i += 3
		case c == '"' || c == '\'':
			l.quote = string(c)
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	if len(l.quote) == 1 {
		// Unterminated single-quoted string: Python would reject it; recover.
		l.quote = ""
	}
	return out.String()
}

func bracketDelta(s string) int {
	d := 0
	for _, c := range s {
		switch c {
		case '(', '[', '{':
			d++
		case ')', ']', '}':
			d--
		}
	}
	return d
}
