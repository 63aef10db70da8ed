package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v81/github"
)

// ErrBranchNotFound is returned when the repository or branch does not exist
// or is not visible to the token.
var ErrBranchNotFound = errors.New("branch not found")

// BranchHead returns the commit SHA at the tip of owner/repo@branch.
func (c *Client) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	if c == nil || c.Client == nil {
		return "", errors.New("github client is nil")
	}
	if owner == "" || repo == "" || branch == "" {
		return "", fmt.Errorf("branch head: owner, repo and branch are required")
	}

	b, resp, err := c.Client.Repositories.GetBranch(ctx, owner, repo, branch, 1)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s/%s@%s", ErrBranchNotFound, owner, repo, branch)
		}
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s/%s@%s", ErrBranchNotFound, owner, repo, branch)
		}
		return "", fmt.Errorf("get branch %s/%s@%s: %w", owner, repo, branch, err)
	}
	sha := b.GetCommit().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("get branch %s/%s@%s: response has no commit SHA", owner, repo, branch)
	}
	return sha, nil
}
