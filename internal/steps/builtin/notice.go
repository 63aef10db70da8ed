package builtin

import (
	"context"
	"fmt"

	"datadeploy/internal/steps"
)

type NoticeStep struct{}

func (s *NoticeStep) ID() string {
	return "notice"
}

func (s *NoticeStep) Title() string {
	return "Deployment Notice"
}

func (s *NoticeStep) Description() string {
	return "Prints a fixed informational message. The hosting platform redeploys on\n" +
		"its own when the branch moves; nothing is called. Always passes."
}

func (s *NoticeStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	msg := rc.Config.Workflow.Notice
	_, _ = fmt.Fprintln(rc.Output(), msg)
	return steps.Pass(msg, nil), nil
}
