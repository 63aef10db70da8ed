// Package engine executes one deployment run: it builds the run context,
// walks the step sequence fail-fast, and reports lifecycle events to the
// configured sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"datadeploy/internal/config"
	gh "datadeploy/internal/github"
	"datadeploy/internal/gitrepo"
	"datadeploy/internal/history"
	"datadeploy/internal/logger"
	"datadeploy/internal/output"
	"datadeploy/internal/proc"
	"datadeploy/internal/steps"
	"datadeploy/internal/trigger"

	"github.com/google/uuid"
)

func exitCodeForRun(fatal, failed bool) int {
	// Exit code contract:
	// 0 = run succeeded (committed or unchanged)
	// 1 = a step failed
	// 3 = fatal error (run did not start)
	if fatal {
		return 3
	}
	if failed {
		return 1
	}
	return 0
}

// stepFailureKinds classifies plain errors from steps that did not attach a kind.
var stepFailureKinds = map[string]steps.FailureKind{
	"checkout": steps.FailureCheckout,
	"setup":    steps.FailureProvision,
	"install":  steps.FailureDependency,
	"fetch":    steps.FailureFetch,
	"verify":   steps.FailureVerify,
	"commit":   steps.FailurePush,
}

type Engine struct {
	// Client is optional; when set the commit step confirms the branch head via the API.
	Client *gh.Client

	// Token authorizes git fetch and push. Never logged.
	Token string

	Runner proc.Runner

	// Stdout receives console and emit sinks. Defaults to os.Stdout.
	Stdout io.Writer

	// Transcript receives subprocess output. Defaults to Stdout for the text
	// console and os.Stderr otherwise, keeping structured stdout parseable.
	Transcript io.Writer

	// sequence is a test seam for the step chain.
	// If nil, Engine uses the registered steps.Sequence.
	sequence func() ([]steps.Step, error)

	now   func() time.Time
	newID func() string
}

func NewEngine(client *gh.Client, token string) *Engine {
	return &Engine{
		Client: client,
		Token:  token,
		Runner: proc.NewExecRunner(),
	}
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *Engine) transcript(cfg *config.Config) io.Writer {
	if e.Transcript != nil {
		return e.Transcript
	}
	if !cfg.Output.NoConsole && cfg.Output.ConsoleFormat == "text" && len(cfg.Output.Emit) == 0 {
		return e.stdout()
	}
	return os.Stderr
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UTC()
}

func (e *Engine) runID() string {
	if e.newID != nil {
		return e.newID()
	}
	return uuid.NewString()
}

func (e *Engine) stepSequence() ([]steps.Step, error) {
	if e.sequence != nil {
		return e.sequence()
	}
	return steps.Sequence()
}

func (e *Engine) setupOutputManager(cfg *config.Config) (*output.Manager, error) {
	outMgr := output.NewManager()
	add := func(s output.Sink, err error) error {
		if err == nil {
			err = outMgr.AddSink(s)
		}
		if err != nil {
			_ = outMgr.Close()
		}
		return err
	}

	// Console Sink
	if !cfg.Output.NoConsole {
		cs, err := output.NewConsoleSink(e.stdout(), cfg.Output.ConsoleFormat)
		if err := add(cs, err); err != nil {
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(e.stdout(), emit)
		if err := add(es, err); err != nil {
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err := add(fs, err); err != nil {
			return nil, err
		}
	}

	// Markdown summary
	if cfg.Output.Summary != "" {
		ss, err := output.NewSummarySink(cfg.Output.Summary)
		if err := add(ss, err); err != nil {
			return nil, err
		}
	}

	// Run ledger
	if cfg.Runtime.History != "" {
		hs, err := history.NewSink(cfg.Runtime.History)
		if err := add(hs, err); err != nil {
			return nil, err
		}
	}

	return outMgr, nil
}

func (e *Engine) newRunContext(cfg *config.Config, runID string, ev trigger.Event, transcript io.Writer) (*steps.RunContext, error) {
	workdir, err := filepath.Abs(cfg.Repository.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	runner := e.Runner
	if runner == nil {
		runner = proc.NewExecRunner()
	}
	repo := gitrepo.Open(workdir, runner,
		gitrepo.WithToken(e.Token),
		gitrepo.WithOutput(transcript),
		gitrepo.WithEnv(proc.Environ(cfg.Git.TokenEnv, "GH_TOKEN")),
	)
	return &steps.RunContext{
		RunID:   runID,
		Config:  cfg,
		Event:   ev,
		WorkDir: workdir,
		Repo:    repo,
		Runner:  runner,
		GitHub:  e.Client,
		Email:   os.Getenv(cfg.Git.EmailEnv),
		Out:     transcript,
	}, nil
}

// Run executes one run for ev and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config, ev trigger.Event) int {
	runID := e.runID()
	ctx = logger.WithKV(ctx, "run", shortID(runID), "trigger", string(ev.Kind))

	seq, err := e.stepSequence()
	if err != nil {
		logger.Errorf(ctx, "cannot build step sequence: %v", err)
		return exitCodeForRun(true, false)
	}

	outMgr, err := e.setupOutputManager(cfg)
	if err != nil {
		logger.Errorf(ctx, "cannot create output sinks: %v", err)
		return exitCodeForRun(true, false)
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			logger.Errorf(ctx, "closing output sinks: %v", err)
		}
	}()
	write := func(ev output.Event) {
		if err := outMgr.Write(ev); err != nil {
			logger.WarnKV(ctx, "output sink error", "event", ev.Type, "error", err)
		}
	}

	rc, err := e.newRunContext(cfg, runID, ev, e.transcript(cfg))
	if err != nil {
		logger.Errorf(ctx, "cannot build run context: %v", err)
		return exitCodeForRun(true, false)
	}

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	started := e.clock()
	logger.InfoKV(ctx, "run started", "revision", ev.Revision, "workdir", rc.WorkDir)
	write(output.Event{Type: output.EventRunStarted, RunID: runID, Time: started, Trigger: string(ev.Kind), Revision: ev.Revision})

	failed, failure := e.walk(ctx, rc, seq, write)

	finished := output.Event{
		Type:     output.EventRunFinished,
		RunID:    runID,
		Time:     e.clock(),
		Revision: rc.Outputs.Revision,
		Duration: e.clock().Sub(started),
		ExitCode: exitCodeForRun(false, failed),
	}
	if failed {
		finished.Status = output.RunFailed
		finished.Failure = failure
		logger.ErrorKV(ctx, "run failed", "failure", failure)
	} else {
		finished.Status = output.RunSucceeded
		finished.Outcome = output.OutcomeUnchanged
		if rc.Outputs.Changed {
			finished.Outcome = output.OutcomeCommitted
			finished.Commit = rc.Outputs.CommitSHA
		}
		logger.InfoKV(ctx, "run succeeded", "outcome", finished.Outcome, "commit", finished.Commit)
	}
	write(finished)
	return finished.ExitCode
}

// walk runs seq in order. The first failure stops the chain and every later
// step is reported SKIPPED. Nothing is retried or rolled back.
func (e *Engine) walk(ctx context.Context, rc *steps.RunContext, seq []steps.Step, write func(output.Event)) (bool, steps.FailureKind) {
	for i, s := range seq {
		stepCtx := logger.WithName(ctx, s.ID())
		write(output.Event{Type: output.EventStepStarted, RunID: rc.RunID, Time: e.clock(), Step: s.ID()})

		start := e.clock()
		var res steps.Result
		var err error
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("run aborted before step: %w", ctxErr)
		} else {
			res, err = s.Run(stepCtx, rc)
		}
		res.StepID = s.ID()
		res.Duration = e.clock().Sub(start)

		if err == nil && res.Status == steps.StatusFail {
			err = fmt.Errorf("step reported failure: %s", res.Message)
		}
		if err != nil {
			kind := steps.KindOf(err)
			if kind == "" {
				kind = stepFailureKinds[s.ID()]
			}
			var se *steps.StepError
			if errors.As(err, &se) && se.Step == "" {
				se.Step = s.ID()
			}
			res.Status = steps.StatusFail
			res.Failure = kind
			res.Error = err.Error()
			logger.ErrorKV(stepCtx, "step failed", "failure", kind, "error", err)
			write(output.Event{Type: output.EventStepResult, RunID: rc.RunID, Time: e.clock(), Step: s.ID(), Result: &res})

			for _, rest := range seq[i+1:] {
				skipped := steps.Skipped(rest.ID(), fmt.Sprintf("skipped after %s failure", s.ID()))
				write(output.Event{Type: output.EventStepResult, RunID: rc.RunID, Time: e.clock(), Step: rest.ID(), Result: &skipped})
			}
			return true, kind
		}

		if res.Status == "" {
			res.Status = steps.StatusPass
		}
		logger.DebugKV(stepCtx, "step passed", "message", res.Message, "duration", res.Duration)
		write(output.Event{Type: output.EventStepResult, RunID: rc.RunID, Time: e.clock(), Step: s.ID(), Result: &res})
	}
	return false, ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
