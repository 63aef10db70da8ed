package builtin

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"datadeploy/internal/artifact"
	"datadeploy/internal/steps"
)

type VerifyStep struct{}

func (s *VerifyStep) ID() string {
	return "verify"
}

func (s *VerifyStep) Title() string {
	return "Verify Artifact"
}

func (s *VerifyStep) Description() string {
	return "Opens the artifact as Parquet and prints its shape and leading rows.\n\n" +
		"This proves the file exists and decodes. The schema is not validated.\n\n" +
		"Failure kind: verify"
}

func (s *VerifyStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	wf := rc.Config.Workflow
	sum, err := artifact.Inspect(filepath.Join(rc.WorkDir, wf.Artifact), wf.PreviewRows)
	if err != nil {
		return steps.Result{}, steps.Fail(steps.FailureVerify, err)
	}
	sum.Path = wf.Artifact
	if err := sum.Print(rc.Output()); err != nil {
		return steps.Result{}, steps.Fail(steps.FailureVerify, err)
	}
	rc.Outputs.Artifact = sum

	rows, cols := sum.Shape()
	return steps.Pass(
		fmt.Sprintf("shape (%d, %d)", rows, cols),
		map[string]string{
			"rows":    strconv.FormatInt(rows, 10),
			"columns": strings.Join(sum.Columns, ","),
			"sha256":  sum.SHA256,
		},
	), nil
}
