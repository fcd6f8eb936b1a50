// SPDX-License-Identifier: MPL-2.0

package weaver

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

const (
	// ResultMarker prefixes the single result line the composed script prints.
	ResultMarker = "__POSTCOND_RESULT__"
	// RecheckFailedMessage reports an enforce() that returned without
	// making the postcondition hold.
	RecheckFailedMessage = "enforce() completed but the postcondition still does not hold"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"pyquote": strconv.Quote,
	"indent":  indent,
}).ParseFS(templateFS, "templates/*.tmpl"))

type (
	// Weaver composes snippets into self-contained scripts.
	Weaver struct {
		// SysPath entries (inside paths) are prepended to sys.path.
		SysPath []string
		// InitFragment runs after the entry-point import and before the
		// snippet, e.g. django.setup().
		InitFragment string
		// CheckMode reports would-change without calling enforce().
		CheckMode bool
	}

	// ComposedScript is prologue + verbatim snippet + epilogue.
	ComposedScript struct {
		Text      string
		ClassName string
		// SnippetStartLine and SnippetEndLine are the 1-based lines of Text
		// holding the snippet.
		SnippetStartLine int
		SnippetEndLine   int
	}

	templateData struct {
		Marker               string
		RecheckFailedMessage string
		SysPath              []string
		Bootstrap            string
		ClassName            string
		CheckMode            bool
		SnippetStartLine     int
		SnippetEndLine       int
	}
)

// Compose wraps snippetText. An empty className selects the class deriving
// from PostconditionBase; entryPointImport is the import statement that makes
// the framework (and usually PostconditionBase) importable.
func (w *Weaver) Compose(snippetText, className, entryPointImport string) (ComposedScript, error) {
	name, err := Scan(snippetText).ResolveClass(className)
	if err != nil {
		return ComposedScript{}, err
	}

	data := templateData{
		Marker:               ResultMarker,
		RecheckFailedMessage: RecheckFailedMessage,
		SysPath:              w.SysPath,
		Bootstrap:            joinFragments(entryPointImport, w.InitFragment),
		ClassName:            name,
		CheckMode:            w.CheckMode,
	}

	// Line numbers do not change the prologue's length, so render once to
	// measure and again with the real numbers.
	draft, err := render("prologue.py.tmpl", data)
	if err != nil {
		return ComposedScript{}, err
	}
	data.SnippetStartLine = strings.Count(draft, "\n") + 1
	data.SnippetEndLine = data.SnippetStartLine + countLines(snippetText) - 1

	prologue, err := render("prologue.py.tmpl", data)
	if err != nil {
		return ComposedScript{}, err
	}
	epilogue, err := render("epilogue.py.tmpl", data)
	if err != nil {
		return ComposedScript{}, err
	}

	var text strings.Builder
	text.WriteString(prologue)
	text.WriteString(snippetText)
	if !strings.HasSuffix(snippetText, "\n") {
		text.WriteByte('\n')
	}
	text.WriteString(epilogue)

	return ComposedScript{
		Text:             text.String(),
		ClassName:        name,
		SnippetStartLine: data.SnippetStartLine,
		SnippetEndLine:   data.SnippetEndLine,
	}, nil
}

// SnippetLine maps a line of the composed script back to the snippet, or
// returns 0 for prologue and epilogue lines.
func (c ComposedScript) SnippetLine(scriptLine int) int {
	if scriptLine < c.SnippetStartLine || scriptLine > c.SnippetEndLine {
		return 0
	}
	return scriptLine - c.SnippetStartLine + 1
}

func render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func joinFragments(fragments ...string) string {
	var parts []string
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return "pass"
	}
	return strings.Join(parts, "\n")
}

func indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
