// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/postcond/postcond/internal/weaver"
)

type (
	depsReport struct {
		// Modules are the distinct absolute modules, for the delivery step.
		Modules []string       `json:"modules"`
		Imports []importReport `json:"imports"`
		Classes []classReport  `json:"classes"`
	}

	importReport struct {
		Module string   `json:"module"`
		Names  []string `json:"names,omitempty"`
		Line   int      `json:"line"`
	}

	classReport struct {
		Name  string   `json:"name"`
		Bases []string `json:"bases,omitempty"`
		Line  int      `json:"line"`
	}
)

func newDepsCommand(app *App) *cobra.Command {
	var snippetFile string

	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "List the imports a snippet needs delivered",
		Long: `Print the snippet's statically discoverable imports and classes as JSON.

A delivery step uses the module list to ship the code the snippet imports
before 'postcond run --payload' stages it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(snippetFile, app.stdin)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(app.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(scanDeps(string(data)))
		},
	}

	depsCmd.Flags().StringVarP(&snippetFile, "file", "f", stdinPath, "snippet file ('-' for stdin)")
	return depsCmd
}

func scanDeps(src string) depsReport {
	snippet := weaver.Scan(src)
	report := depsReport{
		Modules: snippet.Modules(),
		Imports: make([]importReport, 0, len(snippet.Imports)),
		Classes: make([]classReport, 0, len(snippet.Classes)),
	}
	if report.Modules == nil {
		report.Modules = []string{}
	}
	for _, imp := range snippet.Imports {
		report.Imports = append(report.Imports, importReport{Module: imp.Module, Names: imp.Names, Line: imp.Line})
	}
	for _, c := range snippet.Classes {
		report.Classes = append(report.Classes, classReport{Name: c.Name, Bases: c.Bases, Line: c.Line})
	}
	return report
}
