package builtin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"datadeploy/internal/proc"
	"datadeploy/internal/steps"
)

type SetupStep struct{}

func (s *SetupStep) ID() string {
	return "setup"
}

func (s *SetupStep) Title() string {
	return "Provision Interpreter"
}

func (s *SetupStep) Description() string {
	return "Confirms the pinned interpreter is available.\n\n" +
		"Runs `<interpreter> --version` and requires the reported version to match\n" +
		"the pin component-wise as a prefix: a pin of 3.11 accepts 3.11.9 but not\n" +
		"3.1 or 3.12. An empty pin accepts any version.\n\n" +
		"Failure kind: provision"
}

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

func (s *SetupStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	wf := rc.Config.Workflow
	cmd := proc.Command{
		Name: wf.Interpreter,
		Args: []string{"--version"},
		Dir:  rc.WorkDir,
		Env:  proc.Environ(rc.Config.Git.TokenEnv),
	}
	res, err := rc.Runner.Run(ctx, cmd)
	if err := proc.Check(cmd, res, err); err != nil {
		if errors.Is(err, proc.ErrNotFound) {
			return steps.Result{}, steps.Failf(steps.FailureProvision, "interpreter %q is not installed", wf.Interpreter)
		}
		return steps.Result{}, steps.Fail(steps.FailureProvision, err)
	}

	// Some interpreters report their version on stderr.
	version := versionPattern.FindString(string(res.Tail))
	if version == "" {
		return steps.Result{}, steps.Failf(steps.FailureProvision,
			"cannot determine %s version from %q", wf.Interpreter, strings.TrimSpace(string(res.Tail)))
	}
	if !versionMatches(wf.Version, version) {
		return steps.Result{}, steps.Failf(steps.FailureProvision,
			"%s %s does not satisfy pinned version %s", wf.Interpreter, version, wf.Version)
	}
	rc.Outputs.InterpreterVersion = version

	return steps.Pass(
		fmt.Sprintf("%s %s", wf.Interpreter, version),
		map[string]string{"interpreter": wf.Interpreter, "version": version, "pin": wf.Version},
	), nil
}

// versionMatches reports whether actual starts with every dotted component of pin.
func versionMatches(pin, actual string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return true
	}
	want := strings.Split(pin, ".")
	got := strings.Split(actual, ".")
	if len(got) < len(want) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}
