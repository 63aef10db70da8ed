package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"datadeploy/internal/logger"
	"datadeploy/internal/proc"
	"datadeploy/internal/steps"
)

type InstallStep struct{}

func (s *InstallStep) ID() string {
	return "install"
}

func (s *InstallStep) Title() string {
	return "Install Dependencies"
}

func (s *InstallStep) Description() string {
	return "Installs the fetch script's dependencies from the manifest.\n\n" +
		"The manifest must exist in the working copy. The install command\n" +
		"(default `<interpreter> -m pip install -r <manifest>`) runs through sh -c;\n" +
		"any non-zero exit fails the step. There is no partial success.\n\n" +
		"Failure kind: dependency"
}

func (s *InstallStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	wf := rc.Config.Workflow

	manifest := filepath.Join(rc.WorkDir, wf.Manifest)
	if _, err := os.Stat(manifest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return steps.Result{}, steps.Failf(steps.FailureDependency, "manifest %s not found", wf.Manifest)
		}
		return steps.Result{}, steps.Fail(steps.FailureDependency, err)
	}

	cmd := shellCommand(rc, wf.Install)
	logger.InfoKV(ctx, "installing dependencies", "command", cmd.String())
	res, err := rc.Runner.Run(ctx, cmd)
	if err := proc.Check(cmd, res, err); err != nil {
		return steps.Result{}, steps.Fail(steps.FailureDependency, err)
	}

	return steps.Pass(
		fmt.Sprintf("installed from %s", wf.Manifest),
		map[string]string{"manifest": wf.Manifest, "duration": res.Duration.String()},
	), nil
}
