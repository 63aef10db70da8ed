package steps

import (
	"io"

	"datadeploy/internal/artifact"
	"datadeploy/internal/config"
	"datadeploy/internal/github"
	"datadeploy/internal/gitrepo"
	"datadeploy/internal/proc"
	"datadeploy/internal/trigger"
)

// RunContext is the state one run threads through its steps.
type RunContext struct {
	RunID  string
	Config *config.Config
	Event  trigger.Event

	// WorkDir is the absolute working copy path.
	WorkDir string

	Repo   *gitrepo.Repo
	Runner proc.Runner

	// GitHub is optional; nil disables API-side confirmation.
	GitHub *github.Client

	// Email is the bot commit email, resolved from the environment.
	Email string

	// Out receives subprocess output and step transcripts.
	Out io.Writer

	Outputs Outputs
}

// Outputs are facts produced by earlier steps for later ones.
type Outputs struct {
	// Revision is the commit checked out by the checkout step.
	Revision string

	// InterpreterVersion is the version reported by the setup step.
	InterpreterVersion string

	Artifact *artifact.Summary

	// Changed reports whether the artifact differed from HEAD.
	Changed   bool
	CommitSHA string
}

// Output returns the transcript writer, never nil.
func (rc *RunContext) Output() io.Writer {
	if rc == nil || rc.Out == nil {
		return io.Discard
	}
	return rc.Out
}
