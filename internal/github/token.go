package github

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceEnv      AuthTokenSource = "env"
	AuthTokenSourceGitHubCL AuthTokenSource = "gh"
)

// DefaultTokenEnv is consulted when no env name is configured.
const DefaultTokenEnv = "GITHUB_TOKEN"

// ghTokenEnv is the variable the GitHub CLI itself honors. It is only read
// when the token env name is left at its default.
const ghTokenEnv = "GH_TOKEN"

// ghTimeout bounds `gh auth token` so a broken credential helper cannot stall a run.
const ghTimeout = 5 * time.Second

// tokenLookup yields a token, or "" when its source has none.
type tokenLookup struct {
	source AuthTokenSource
	lookup func(ctx context.Context) (string, error)
}

// ResolveAuthToken finds the token that authorizes fetch, push and API calls.
// Sources are tried in order: provided, the envName variable (GITHUB_TOKEN,
// then GH_TOKEN, when envName is empty), then `gh auth token -h github.com`.
// An empty token with a nil error means no source had one. The token is never
// logged.
func ResolveAuthToken(ctx context.Context, provided, envName string) (string, AuthTokenSource, error) {
	envNames := []string{envName}
	if envName == "" || envName == DefaultTokenEnv {
		envNames = []string{DefaultTokenEnv, ghTokenEnv}
	}

	chain := []tokenLookup{
		{AuthTokenSourceExplicit, func(context.Context) (string, error) { return provided, nil }},
		{AuthTokenSourceEnv, func(context.Context) (string, error) { return firstEnv(envNames), nil }},
		{AuthTokenSourceGitHubCL, tokenFromGitHubCLI},
	}
	for _, src := range chain {
		tok, err := src.lookup(ctx)
		if err != nil {
			return "", "", err
		}
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok, src.source, nil
		}
	}
	return "", "", nil
}

func firstEnv(names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func tokenFromGitHubCLI(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, ghTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "gh", "auth", "token", "-h", "github.com")
	cmd.Env = append(withoutEnv(os.Environ(), "GH_PAGER"), "GH_PAGER=cat")

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := cmdCtx.Err(); ctxErr != nil {
			return "", fmt.Errorf("gh auth token: %w", ctxErr)
		}
		// Not logged in. gh's stderr is not surfaced.
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}

func withoutEnv(env []string, name string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, name+"=") {
			out = append(out, kv)
		}
	}
	return out
}
