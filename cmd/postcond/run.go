// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/postcond/postcond/internal/container"
	"github.com/postcond/postcond/internal/issue"
	"github.com/postcond/postcond/internal/orchestrator"
	"github.com/postcond/postcond/internal/runner"
	"github.com/postcond/postcond/internal/staging"
	"github.com/postcond/postcond/internal/weaver"
)

const (
	// issueStyle is the glamour style used for catalog guidance on stderr.
	issueStyle = "auto"

	// Phases of failures detected before the orchestrator runs.
	phaseConfig  = "config"
	phaseRequest = "request"
)

func newRunCommand(app *App) *cobra.Command {
	var flags requestFlags

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Enforce a postcondition and print the result record",
		Long: `Enforce a postcondition in the target runtime.

The request comes from flags, from an args file (--args FILE with a .json,
.toml or .cue extension) or from JSON on stdin (--args -). Flags given
explicitly override the args file.

Exactly one JSON record is written to stdout. The exit status is 0 when the
postcondition holds (changed or not) and 1 when the invocation failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.checkModeSet = cmd.Flags().Changed("check")
			flags.keepSet = cmd.Flags().Changed("keep-remote-files")
			return runPostcondition(cmd, app, flags)
		},
	}

	runCmd.Flags().StringVarP(&flags.snippetFile, "file", "f", "", "snippet file ('-' for stdin)")
	runCmd.Flags().StringVar(&flags.argsFile, "args", "", "request args file ('-' for JSON on stdin)")
	runCmd.Flags().StringVar(&flags.class, "class", "", "postcondition class (default: the class deriving from PostconditionBase)")
	runCmd.Flags().StringVarP(&flags.runner, "runner", "r", "", "runner: python, django, container or snap (default from config)")
	runCmd.Flags().BoolVar(&flags.checkMode, "check", false, "report whether enforcement would change anything, without enforcing")
	runCmd.Flags().BoolVar(&flags.keepRemoteFiles, "keep-remote-files", false, "keep staged files for inspection")
	runCmd.Flags().StringArrayVar(&flags.payloads, "payload", nil, "delivered archive to stage and put on sys.path (repeatable)")

	return runCmd
}

func runPostcondition(cmd *cobra.Command, app *App, flags requestFlags) error {
	ctx := cmd.Context()

	cfg, err := app.loadConfig(ctx)
	if err != nil {
		renderIssue(app, issue.ConfigLoadFailedId)
		return reportFailure(app, err, phaseConfig)
	}
	logger := app.logger(cfg)

	req, err := buildRequest(flags, app.stdin)
	if err != nil {
		return reportFailure(app, err, phaseRequest)
	}

	report, runErr := app.newOrchestrator(cfg, logger).Run(ctx, req)
	if report == nil {
		return runErr
	}

	if err := json.NewEncoder(app.stdout).Encode(report.Result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if report.Retained && !report.StagingDir.IsZero() {
		fmt.Fprintf(app.stderr, "%s staged files kept in %s\n", WarningStyle.Render("!"), report.StagingDir.OutsidePath)
	}

	if !report.Result.Failed() {
		return nil
	}
	if id := issueFor(report); id != 0 {
		renderIssue(app, id)
	}
	logger.Debug("invocation failed", "message", report.Result.Message(), "state", report.State)

	if runErr != nil {
		fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(runErr, app.verbose))
	}
	return &ExitError{Code: 1, Err: runErr, Silent: true}
}

// reportFailure writes the failed result record for an invocation that never
// reached the orchestrator and prints err to stderr.
func reportFailure(app *App, err error, phase string) error {
	result := runner.Failure(err.Error(), map[string]any{"phase": phase})
	if encErr := json.NewEncoder(app.stdout).Encode(result); encErr != nil {
		return fmt.Errorf("write result: %w", encErr)
	}
	fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, app.verbose))
	return &ExitError{Code: 1, Err: err, Silent: true}
}

// issueFor picks the catalog entry explaining a failed report, or 0.
func issueFor(report *orchestrator.Report) issue.Id {
	switch err := report.Err; {
	case err == nil:
	case errors.Is(err, staging.ErrStagingIO):
		return issue.StagingRootNotWritableId
	case errors.Is(err, weaver.ErrNoPostconditionClass), errors.Is(err, weaver.ErrClassNotFound), errors.Is(err, weaver.ErrInvalidClassName):
		return issue.PostconditionClassMissingId
	case errors.Is(err, runner.ErrUnknownRunner):
		return issue.UnknownRunnerId
	case errors.Is(err, container.ErrContainerNotRunning):
		return issue.ContainerNotRunningId
	case errors.Is(err, runner.ErrSnapNotInstalled):
		return issue.SnapNotInstalledId
	case errors.Is(err, runner.ErrDjangoProjectNotFound):
		return issue.DjangoProjectNotFoundId
	case errors.Is(err, runner.ErrLaunch), errors.Is(err, container.ErrEngineNotAvailable):
		return issue.InterpreterNotFoundId
	}

	message := report.Result.Message()
	switch {
	case strings.HasPrefix(message, runner.NoResultMessage) && report.Outcome.ExitCode.IsLaunchFailure():
		return issue.InterpreterNotFoundId
	case strings.HasPrefix(message, runner.NoResultMessage), strings.HasPrefix(message, runner.MalformedResultMessage):
		return issue.ResultNotReportedId
	case message == weaver.RecheckFailedMessage:
		return issue.RepairDidNotHoldId
	}
	return 0
}

// renderIssue writes catalog guidance to stderr.
func renderIssue(app *App, id issue.Id) {
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, err := entry.Render(issueStyle)
	if err != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", err)
		return
	}
	fmt.Fprint(app.stderr, rendered)
}
