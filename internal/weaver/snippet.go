// SPDX-License-Identifier: MPL-2.0

package weaver

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// BaseClassName is the base class a postcondition snippet derives from.
const BaseClassName = "PostconditionBase"

var (
	// ErrNoPostconditionClass is returned when no class in the snippet
	// derives from PostconditionBase.
	ErrNoPostconditionClass = errors.New("no class deriving from " + BaseClassName)
	// ErrClassNotFound is returned when an explicitly named class is not declared.
	ErrClassNotFound = errors.New("class not declared in snippet")
	// ErrInvalidClassName is returned for a class name that is not a Python identifier.
	ErrInvalidClassName = errors.New("invalid class name")

	classRe      = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*(?:\((.*)\))?\s*:`)
	importRe     = regexp.MustCompile(`^import\s+(.+)$`)
	fromImportRe = regexp.MustCompile(`^from\s+(\.*[\w.]*)\s+import\s+(.+)$`)
	identifierRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

type (
	// Snippet is the statically discoverable structure of a postcondition
	// snippet: its class declarations and imports.
	Snippet struct {
		Text    string
		Classes []ClassDecl
		Imports []Import
	}

	// ClassDecl is a `class Name(Bases...):` statement.
	ClassDecl struct {
		Name  string
		Bases []string
		// Line is 1-based within the snippet.
		Line int
	}

	// Import is an `import m` or `from m import a, b` statement.
	Import struct {
		Module string
		Names  []string
		Line   int
	}
)

// Scan collects class declarations and imports from Python source. It never
// fails: text it cannot make sense of is ignored.
func Scan(src string) *Snippet {
	s := &Snippet{Text: src}
	for stmt := range logicalLines(src) {
		text := strings.TrimSpace(stmt.text)
		switch {
		case strings.HasPrefix(text, "class"):
			if m := classRe.FindStringSubmatch(text); m != nil {
				s.Classes = append(s.Classes, ClassDecl{Name: m[1], Bases: splitBases(m[2]), Line: stmt.line})
			}
		case strings.HasPrefix(text, "import"):
			if m := importRe.FindStringSubmatch(text); m != nil {
				for _, part := range splitList(m[1]) {
					module, _, _ := strings.Cut(part, " ")
					s.Imports = append(s.Imports, Import{Module: module, Line: stmt.line})
				}
			}
		case strings.HasPrefix(text, "from"):
			if m := fromImportRe.FindStringSubmatch(text); m != nil {
				var names []string
				for _, part := range splitList(m[2]) {
					name, _, _ := strings.Cut(part, " ")
					names = append(names, name)
				}
				s.Imports = append(s.Imports, Import{Module: m[1], Names: names, Line: stmt.line})
			}
		}
	}
	return s
}

// ParseSnippet scans src and requires a class deriving from PostconditionBase.
func ParseSnippet(src string) (*Snippet, error) {
	s := Scan(src)
	if _, ok := s.PostconditionClass(); !ok {
		return nil, ErrNoPostconditionClass
	}
	return s, nil
}

// PostconditionClass returns the first class with PostconditionBase among
// its bases (matched as a substring, so module-qualified bases count).
func (s *Snippet) PostconditionClass() (ClassDecl, bool) {
	for _, c := range s.Classes {
		for _, b := range c.Bases {
			if strings.Contains(b, BaseClassName) {
				return c, true
			}
		}
	}
	return ClassDecl{}, false
}

// Class returns the declaration named name.
func (s *Snippet) Class(name string) (ClassDecl, bool) {
	i := slices.IndexFunc(s.Classes, func(c ClassDecl) bool { return c.Name == name })
	if i < 0 {
		return ClassDecl{}, false
	}
	return s.Classes[i], true
}

// ResolveClass returns name when it is declared, or the PostconditionBase
// subclass when name is empty.
func (s *Snippet) ResolveClass(name string) (string, error) {
	if name == "" {
		c, ok := s.PostconditionClass()
		if !ok {
			return "", ErrNoPostconditionClass
		}
		return c.Name, nil
	}
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidClassName, name)
	}
	if _, ok := s.Class(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return name, nil
}

// Modules returns the distinct absolute modules the snippet imports, in
// order of first appearance. Relative imports are skipped: they cannot be
// delivered on their own.
func (s *Snippet) Modules() []string {
	var out []string
	for _, imp := range s.Imports {
		if imp.Module == "" || strings.HasPrefix(imp.Module, ".") || slices.Contains(out, imp.Module) {
			continue
		}
		out = append(out, imp.Module)
	}
	return out
}

func splitBases(s string) []string {
	var bases []string
	for _, part := range splitList(s) {
		if strings.Contains(part, "=") {
			// metaclass=..., other keyword arguments
			continue
		}
		bases = append(bases, part)
	}
	return bases
}

// splitList splits a comma-separated list, dropping parentheses, empty items
// and normalizing inner whitespace.
func splitList(s string) []string {
	s = strings.NewReplacer("(", " ", ")", " ", "\\", " ").Replace(s)
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if f := strings.Fields(part); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return out
}
