// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/postcond/postcond/internal/orchestrator"
)

type weaveFlags struct {
	snippetFile string
	class       string
	checkMode   bool
	sysPath     []string
	render      bool
	style       string
}

func newWeaveCommand(app *App) *cobra.Command {
	var flags weaveFlags

	weaveCmd := &cobra.Command{
		Use:   "weave",
		Short: "Print the script a run would stage",
		Long: `Print the composed script: prologue, the snippet verbatim and the
epilogue that runs holds()/enforce() and reports the result.

Nothing is staged or executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return weaveSnippet(cmd, app, flags)
		},
	}

	weaveCmd.Flags().StringVarP(&flags.snippetFile, "file", "f", stdinPath, "snippet file ('-' for stdin)")
	weaveCmd.Flags().StringVar(&flags.class, "class", "", "postcondition class (default: the class deriving from PostconditionBase)")
	weaveCmd.Flags().BoolVar(&flags.checkMode, "check", false, "compose for check mode")
	weaveCmd.Flags().StringArrayVar(&flags.sysPath, "sys-path", nil, "inside path to prepend to sys.path (repeatable)")
	weaveCmd.Flags().BoolVar(&flags.render, "render", false, "render with syntax highlighting")
	weaveCmd.Flags().StringVar(&flags.style, "style", "auto", "glamour style for --render (auto, dark, light, notty)")

	return weaveCmd
}

func weaveSnippet(cmd *cobra.Command, app *App, flags weaveFlags) error {
	cfg, err := app.loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	data, err := readInput(flags.snippetFile, app.stdin)
	if err != nil {
		return err
	}

	script, err := orchestrator.New(cfg, orchestrator.WithLogger(app.logger(cfg))).Compose(orchestrator.Request{
		Snippet:   string(data),
		ClassName: flags.class,
		CheckMode: flags.checkMode,
	}, flags.sysPath...)
	if err != nil {
		return err
	}

	if !flags.render {
		_, err = fmt.Fprint(app.stdout, script.Text)
		return err
	}

	md := fmt.Sprintf("# %s\n\nSnippet lines %d-%d\n\n```python\n%s```\n",
		script.ClassName, script.SnippetStartLine, script.SnippetEndLine, script.Text)
	rendered, err := glamour.Render(md, flags.style)
	if err != nil {
		return fmt.Errorf("render script: %w", err)
	}
	_, err = fmt.Fprint(app.stdout, rendered)
	return err
}
