// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postcond/postcond/internal/config"
	"github.com/postcond/postcond/internal/logging"
	"github.com/postcond/postcond/internal/runner"
	"github.com/postcond/postcond/internal/staging"
	"github.com/postcond/postcond/internal/weaver"
)

// Phases reported in the "phase" field of results the orchestrator
// synthesises. The composed script reports its own phases (check, enforce,
// ...) for failures inside the target runtime.
const (
	PhaseCompose = "compose"
	PhaseSetup   = "setup"
	PhaseStage   = "stage"
	PhaseExecute = "execute"
)

// ErrEmptySnippet is returned for a request without snippet text.
var ErrEmptySnippet = errors.New("postcondition snippet is empty")

type (
	// Request is one invocation as received from the caller.
	Request struct {
		// Snippet is the postcondition source, parameters already substituted.
		Snippet string
		// ClassName selects the postcondition class; empty means the class
		// deriving from PostconditionBase.
		ClassName string
		// Runner selects the target runtime; empty means the configured default.
		Runner runner.Kind
		// CheckMode reports whether enforcement would change anything
		// without enforcing.
		CheckMode bool
		// KeepRemoteFiles retains the staging directory for this invocation,
		// in addition to the configured keep_remote_files.
		KeepRemoteFiles bool
		// Payloads are already delivered outside paths (zip archives or
		// module directories' archives) staged and prepended to sys.path.
		Payloads []string
	}

	// Report is the outcome of Run.
	Report struct {
		InvocationID uuid.UUID
		Runner       runner.Kind
		// Result is the single InvocationResult of the invocation.
		Result  runner.InvocationResult
		State   State
		History []State
		// Script is the staged composed script; zero if staging never happened.
		Script staging.StagedFile
		// StagingDir is the staging directory; zero if nothing was staged.
		StagingDir staging.StagingDirectory
		Retained   bool
		Argv       []string
		Outcome    runner.Outcome
		// Err is the cause of a FAILED invocation.
		Err error
		// CleanupErr is set when removing the staging directory failed.
		CleanupErr error
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)

	// Orchestrator runs invocations against the runners of a registry.
	Orchestrator struct {
		cfg        *config.Config
		registry   *runner.Registry
		logger     *slog.Logger
		runnerOpts []runner.Option
		buildOpts  func(*runner.BuildOptions)
		newID      func() uuid.UUID
	}

	// invocation holds the mutable state of one Run.
	invocation struct {
		o       *Orchestrator
		req     Request
		logger  *slog.Logger
		machine *machine
		report  *Report
		runner  *runner.Runner
		cleaned bool
	}
)

// WithRegistry replaces the default runner registry.
func WithRegistry(r *runner.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRunnerOptions appends options applied to every runner built.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(o *Orchestrator) {
		o.runnerOpts = append(o.runnerOpts, opts...)
	}
}

// WithBuildOptions lets the caller adjust the options handed to the runner
// factory, e.g. to add container engine options.
func WithBuildOptions(fn func(*runner.BuildOptions)) Option {
	return func(o *Orchestrator) {
		o.buildOpts = fn
	}
}

// WithIDGenerator replaces uuid.New for invocation IDs.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// New creates an Orchestrator. A nil cfg means config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := &Orchestrator{
		cfg:      cfg,
		registry: runner.DefaultRegistry(),
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDiscard(o.logger)
	return o
}

// Config returns the configuration the orchestrator runs with.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// Compose weaves req.Snippet the way Run would, without staging anything.
// sysPath entries are inside paths.
func (o *Orchestrator) Compose(req Request, sysPath ...string) (weaver.ComposedScript, error) {
	if strings.TrimSpace(req.Snippet) == "" {
		return weaver.ComposedScript{}, ErrEmptySnippet
	}
	w := &weaver.Weaver{
		SysPath:   slices.Concat(sysPath, o.cfg.Python.SysPath),
		CheckMode: req.CheckMode,
	}
	return w.Compose(req.Snippet, req.ClassName, o.cfg.Python.EntryPointImport)
}

// Run executes one invocation. The returned Report always carries exactly
// one result. The error is non-nil only when staging failed on I/O; the
// report then holds a synthesised failed result too.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	kind := req.Runner
	if kind == "" {
		kind = o.cfg.DefaultRunner
	}
	report := &Report{InvocationID: o.newID(), Runner: kind}
	inv := &invocation{
		o:       o,
		req:     req,
		logger:  o.logger.With("invocation_id", report.InvocationID.String(), "runner", kind),
		machine: newMachine(),
		report:  report,
	}

	err := inv.run(ctx)
	inv.cleanup()

	report.State = inv.machine.state
	report.History = inv.machine.History()
	report.Result = report.Result.WithExtra("invocation_id", report.InvocationID.String())
	inv.logger.Info("invocation finished",
		"state", report.State,
		"changed", report.Result.Changed(),
		"failed", report.Result.Failed())
	return report, err
}

func (inv *invocation) run(ctx context.Context) error {
	o, req := inv.o, inv.req

	if strings.TrimSpace(req.Snippet) == "" {
		return inv.fail(ErrEmptySnippet, PhaseCompose)
	}
	className, err := weaver.Scan(req.Snippet).ResolveClass(req.ClassName)
	if err != nil {
		return inv.fail(err, PhaseCompose)
	}

	retain := o.cfg.KeepRemoteFiles || req.KeepRemoteFiles
	inv.report.Retained = retain
	build := runner.BuildOptions{
		Config: o.cfg,
		Staging: staging.Options{
			Root:   o.cfg.StagingRoot,
			Stem:   o.cfg.StagingStem,
			Retain: retain,
			Logger: inv.logger,
		},
		Logger:        inv.logger,
		RunnerOptions: slices.Clone(o.runnerOpts),
	}
	if o.buildOpts != nil {
		o.buildOpts(&build)
	}
	r, err := o.registry.Build(ctx, inv.report.Runner, build)
	if err != nil {
		return inv.fail(err, PhaseSetup)
	}
	inv.runner = r

	var sysPath []string
	for _, payload := range req.Payloads {
		inside, err := r.StagePayload(payload)
		if err != nil {
			return inv.failStaging(err)
		}
		sysPath = append(sysPath, inside)
	}
	sysPath = append(sysPath, o.cfg.Python.SysPath...)

	entryPointImport, initFragment := r.Prologue()
	w := &weaver.Weaver{SysPath: sysPath, InitFragment: initFragment, CheckMode: req.CheckMode}
	script, err := w.Compose(req.Snippet, className, entryPointImport)
	if err != nil {
		return inv.fail(err, PhaseCompose)
	}

	staged, err := r.Stage(script)
	if err != nil {
		return inv.failStaging(err)
	}
	inv.report.Script = staged
	inv.report.StagingDir = r.Filesystem().Dir()

	argv, err := r.BuildArgv(staged)
	if err != nil {
		return inv.fail(err, PhaseStage)
	}
	inv.report.Argv = argv
	if err := inv.machine.transition(StateStaged); err != nil {
		return err
	}

	execCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}
	outcome, err := r.Execute(execCtx, argv)
	inv.report.Outcome = outcome
	if err != nil {
		inv.failExecute(err, outcome)
		return nil
	}
	if err := inv.machine.transition(StateExecuted); err != nil {
		return err
	}

	inv.report.Result = annotateSnippetLine(r.ParseResult(outcome), script, staged.InsidePath)
	inv.cleanup()
	return inv.machine.transition(StateReported)
}

// fail ends the invocation in FAILED with a synthesised result. It returns
// nil: only staging I/O failures reach the caller as errors.
func (inv *invocation) fail(err error, phase string) error {
	inv.report.Err = err
	inv.report.Result = runner.Failure(err.Error(), map[string]any{"phase": phase})
	inv.logger.Error("invocation failed", "phase", phase, "error", err)
	inv.cleanup()
	return inv.machine.transition(StateFailed)
}

func (inv *invocation) failStaging(err error) error {
	if tErr := inv.fail(err, PhaseStage); tErr != nil {
		return tErr
	}
	if errors.Is(err, staging.ErrStagingIO) {
		return err
	}
	return nil
}

func (inv *invocation) failExecute(err error, outcome runner.Outcome) {
	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) && inv.o.cfg.Timeout > 0 {
		message = fmt.Sprintf("target runtime timed out after %s", inv.o.cfg.Timeout.Round(time.Millisecond))
	}
	extras := map[string]any{"phase": PhaseExecute}
	if outcome.Stdout != "" {
		extras["stdout"] = outcome.Stdout
	}
	if outcome.Stderr != "" {
		extras["stderr"] = outcome.Stderr
	}
	if len(inv.report.Argv) > 0 {
		extras["argv"] = inv.report.Argv
	}

	inv.report.Err = err
	inv.report.Result = runner.Failure(message, extras)
	inv.logger.Error("invocation failed", "phase", PhaseExecute, "error", err)
	inv.cleanup()
	_ = inv.machine.transition(StateFailed)
}

// cleanup releases the staging directory once, whatever path led here.
func (inv *invocation) cleanup() {
	if inv.cleaned || inv.runner == nil {
		return
	}
	inv.cleaned = true

	if err := inv.runner.Cleanup(); err != nil {
		inv.report.CleanupErr = err
		inv.logger.Warn("cleanup failed", "error", err)
		return
	}
	if inv.report.Retained && !inv.report.StagingDir.IsZero() {
		inv.logger.Info("retained staged files", "dir", inv.report.StagingDir.OutsidePath)
	}
}

// annotateSnippetLine adds snippet_lineno to a failed result that lacks one
// when the captured traceback points into the staged script, e.g. a
// SyntaxError that kept the script from reporting anything.
func annotateSnippetLine(result runner.InvocationResult, script weaver.ComposedScript, insidePath string) runner.InvocationResult {
	if !result.Failed() {
		return result
	}
	if _, ok := result.Extra("snippet_lineno"); ok {
		return result
	}
	frame := regexp.MustCompile(`File "` + regexp.QuoteMeta(insidePath) + `", line (\d+)`)
	for _, key := range []string{"traceback", "stderr"} {
		text, _ := result.Extra(key)
		s, _ := text.(string)
		matches := frame.FindAllStringSubmatch(s, -1)
		if len(matches) == 0 {
			continue
		}
		scriptLine, err := strconv.Atoi(matches[len(matches)-1][1])
		if err != nil {
			return result
		}
		if line := script.SnippetLine(scriptLine); line > 0 {
			return result.WithExtra("snippet_lineno", line)
		}
		return result
	}
	return result
}
