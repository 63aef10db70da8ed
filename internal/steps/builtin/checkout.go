package builtin

import (
	"context"
	"fmt"

	"datadeploy/internal/logger"
	"datadeploy/internal/steps"
)

type CheckoutStep struct{}

func (s *CheckoutStep) ID() string {
	return "checkout"
}

func (s *CheckoutStep) Title() string {
	return "Check Out Repository"
}

func (s *CheckoutStep) Description() string {
	return "Obtains a working copy of the repository at the triggering revision.\n\n" +
		"When the working directory is not yet a git repository it is cloned from the\n" +
		"configured URL; otherwise the branch is fetched from the remote. Push triggers\n" +
		"check out the pushed commit, schedule and manual triggers the branch head.\n" +
		"HEAD is detached and local modifications are discarded.\n\n" +
		"Failure kind: checkout"
}

func (s *CheckoutStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	repoCfg := rc.Config.Repository
	repo := rc.Repo

	if !repo.IsRepository() {
		if repoCfg.URL == "" {
			return steps.Result{}, steps.Failf(steps.FailureCheckout,
				"%s is not a git repository and no repository URL is configured", repo.Dir())
		}
		logger.InfoKV(ctx, "cloning repository", "dir", repo.Dir(), "branch", repoCfg.Branch)
		if err := repo.Clone(ctx, repoCfg.URL, repoCfg.Remote, repoCfg.Branch); err != nil {
			return steps.Result{}, steps.Fail(steps.FailureCheckout, err)
		}
	} else {
		logger.DebugKV(ctx, "fetching branch", "remote", repoCfg.Remote, "branch", repoCfg.Branch)
		if err := repo.Fetch(ctx, repoCfg.Remote, repoCfg.Branch); err != nil {
			return steps.Result{}, steps.Fail(steps.FailureCheckout, err)
		}
	}

	target := fmt.Sprintf("refs/remotes/%s/%s", repoCfg.Remote, repoCfg.Branch)
	if rev := rc.Event.Revision; rev != "" {
		if !repo.HasCommit(ctx, rev) {
			if err := repo.FetchRevision(ctx, repoCfg.Remote, rev); err != nil {
				return steps.Result{}, steps.Fail(steps.FailureCheckout, err)
			}
		}
		target = rev
	}

	if err := repo.Checkout(ctx, target); err != nil {
		return steps.Result{}, steps.Fail(steps.FailureCheckout, err)
	}
	sha, err := repo.HeadSHA(ctx)
	if err != nil {
		return steps.Result{}, steps.Fail(steps.FailureCheckout, err)
	}
	rc.Outputs.Revision = sha

	return steps.Pass(
		fmt.Sprintf("checked out %s at %s", repoCfg.Branch, short(sha)),
		map[string]string{"revision": sha, "trigger": string(rc.Event.Kind)},
	), nil
}
