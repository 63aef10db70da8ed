package builtin

import (
	"context"

	"datadeploy/internal/logger"
	"datadeploy/internal/proc"
	"datadeploy/internal/steps"
)

type FetchStep struct{}

func (s *FetchStep) ID() string {
	return "fetch"
}

func (s *FetchStep) Title() string {
	return "Fetch Data"
}

func (s *FetchStep) Description() string {
	return "Runs the fetch command that downloads source data and writes the artifact.\n\n" +
		"The command (default `<interpreter> fetch_data.py`) takes no arguments. Its\n" +
		"exit code is the only success signal; the artifact is checked by verify.\n\n" +
		"Failure kind: fetch"
}

func (s *FetchStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	cmd := shellCommand(rc, rc.Config.Workflow.Fetch)
	logger.InfoKV(ctx, "fetching data", "command", cmd.String())
	res, err := rc.Runner.Run(ctx, cmd)
	if err := proc.Check(cmd, res, err); err != nil {
		return steps.Result{}, steps.Fail(steps.FailureFetch, err)
	}
	return steps.Pass("fetch command succeeded", map[string]string{"duration": res.Duration.String()}), nil
}
