package builtin

import (
	"context"
	"fmt"

	"datadeploy/internal/logger"
	"datadeploy/internal/steps"
)

// noreplyEmail is used when the configured email variable is unset.
const noreplyEmail = "41898282+github-actions[bot]@users.noreply.github.com"

type CommitStep struct{}

func (s *CommitStep) ID() string {
	return "commit"
}

func (s *CommitStep) Title() string {
	return "Commit If Changed"
}

func (s *CommitStep) Description() string {
	return "Commits and pushes the artifact only when it differs from HEAD.\n\n" +
		"The bot identity is configured, the artifact is staged and compared with\n" +
		"the committed version. Identical content passes with no commit. Otherwise\n" +
		"exactly one commit is made with the fixed message and HEAD is pushed to\n" +
		"the branch. A rejected push fails the run: there is no retry, rebase,\n" +
		"or rollback.\n\n" +
		"Failure kind: push"
}

func (s *CommitStep) Run(ctx context.Context, rc *steps.RunContext) (steps.Result, error) {
	gitCfg := rc.Config.Git
	repoCfg := rc.Config.Repository
	repo := rc.Repo
	path := rc.Config.Workflow.Artifact

	email := rc.Email
	if email == "" {
		logger.WarnKV(ctx, "bot email variable is empty; using noreply address", "env", gitCfg.EmailEnv)
		email = noreplyEmail
	}
	if err := repo.SetIdentity(ctx, gitCfg.AuthorName, email); err != nil {
		return steps.Result{}, steps.Fail(steps.FailurePush, err)
	}
	if err := repo.Add(ctx, path); err != nil {
		return steps.Result{}, steps.Fail(steps.FailurePush, err)
	}
	changed, err := repo.HasStagedChanges(ctx, path)
	if err != nil {
		return steps.Result{}, steps.Fail(steps.FailurePush, err)
	}
	rc.Outputs.Changed = changed
	if !changed {
		return steps.Pass("no changes", map[string]string{"changed": "false"}), nil
	}

	sha, err := repo.Commit(ctx, gitCfg.CommitMessage)
	if err != nil {
		return steps.Result{}, steps.Fail(steps.FailurePush, err)
	}
	rc.Outputs.CommitSHA = sha
	logger.InfoKV(ctx, "pushing commit", "sha", short(sha), "branch", repoCfg.Branch)
	if err := repo.Push(ctx, repoCfg.Remote, repoCfg.Branch); err != nil {
		return steps.Result{}, steps.Fail(steps.FailurePush, err)
	}

	s.confirm(ctx, rc, sha)

	return steps.Pass(
		fmt.Sprintf("pushed %s to %s", short(sha), repoCfg.Branch),
		map[string]string{"changed": "true", "commit": sha, "branch": repoCfg.Branch},
	), nil
}

// confirm checks the remote branch now points at sha. The push already
// succeeded, so a mismatch only means another writer moved the branch.
func (s *CommitStep) confirm(ctx context.Context, rc *steps.RunContext, sha string) {
	repoCfg := rc.Config.Repository

	head, err := rc.Repo.RemoteHead(ctx, repoCfg.Remote, repoCfg.Branch)
	switch {
	case err != nil:
		logger.WarnKV(ctx, "cannot read remote head", "error", err)
	case head != sha:
		logger.WarnKV(ctx, "remote branch moved after push", "pushed", short(sha), "remote", short(head))
	}

	if rc.GitHub == nil || repoCfg.Slug == "" {
		return
	}
	apiHead, err := rc.GitHub.BranchHead(ctx, repoCfg.Owner(), repoCfg.Name(), repoCfg.Branch)
	switch {
	case err != nil:
		logger.WarnKV(ctx, "cannot read branch head from GitHub", "repo", repoCfg.Slug, "error", err)
	case apiHead != sha:
		logger.WarnKV(ctx, "GitHub branch head differs from pushed commit", "pushed", short(sha), "github", short(apiHead))
	default:
		logger.DebugKV(ctx, "GitHub branch head confirmed", "sha", short(sha))
	}
}
