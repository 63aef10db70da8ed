// Package gitrepo drives the git CLI for the checkout and commit-if-changed
// steps. Credentials are handed to git through GIT_CONFIG_* environment
// variables and never appear on the command line.
package gitrepo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"datadeploy/internal/proc"
)

var (
	// ErrPushRejected means the remote refused the update, typically because
	// the branch moved since checkout (non-fast-forward).
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrNotRepository means the directory is not a git working copy.
	ErrNotRepository = errors.New("not a git repository")
)

// authHeaderKey scopes the token to github.com so it is never sent to other hosts.
const authHeaderKey = "http.https://github.com/.extraheader"

type Repo struct {
	dir    string
	runner proc.Runner
	token  string
	output io.Writer
	env    []string
}

type Option func(*Repo)

// WithToken authorizes fetch and push against github.com with token.
func WithToken(token string) Option {
	return func(r *Repo) {
		r.token = strings.TrimSpace(token)
	}
}

// WithOutput streams git's output to w.
func WithOutput(w io.Writer) Option {
	return func(r *Repo) {
		r.output = w
	}
}

// WithEnv sets the base environment for git commands (default: os.Environ()).
func WithEnv(env []string) Option {
	return func(r *Repo) {
		r.env = env
	}
}

func Open(dir string, runner proc.Runner, opts ...Option) *Repo {
	if runner == nil {
		runner = proc.NewExecRunner()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	r := &Repo{dir: filepath.Clean(dir), runner: runner}
	for _, apply := range opts {
		if apply != nil {
			apply(r)
		}
	}
	return r
}

func (r *Repo) Dir() string {
	return r.dir
}

// IsRepository reports whether Dir holds a working copy (.git dir or file).
func (r *Repo) IsRepository() bool {
	_, err := os.Stat(filepath.Join(r.dir, ".git"))
	return err == nil
}

// Clone clones url into Dir with branch checked out and remote named remote.
func (r *Repo) Clone(ctx context.Context, url, remote, branch string) error {
	if url == "" {
		return errors.New("clone: repository URL is empty")
	}
	if entries, err := os.ReadDir(r.dir); err == nil && len(entries) > 0 {
		return fmt.Errorf("clone: %s exists and is not empty: %w", r.dir, ErrNotRepository)
	}
	parent := filepath.Dir(r.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	_, err := r.gitIn(ctx, parent, "clone", "--no-tags", "--origin", remote, "--branch", branch, "--", url, r.dir)
	return err
}

// Fetch updates the remote-tracking ref for branch.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	refspec := fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remote, branch)
	_, err := r.git(ctx, "fetch", "--no-tags", remote, refspec)
	return err
}

// FetchRevision fetches a single commit by SHA.
func (r *Repo) FetchRevision(ctx context.Context, remote, rev string) error {
	_, err := r.git(ctx, "fetch", "--no-tags", remote, rev)
	return err
}

// HasCommit reports whether rev names a commit present locally.
func (r *Repo) HasCommit(ctx context.Context, rev string) bool {
	res, err := r.run(ctx, "cat-file", "-e", rev+"^{commit}")
	return err == nil && res.Success()
}

// Checkout detaches HEAD at rev, discarding local modifications.
func (r *Repo) Checkout(ctx context.Context, rev string) error {
	_, err := r.git(ctx, "checkout", "--force", "--detach", rev)
	return err
}

// ResolveRevision returns the full SHA rev points at.
func (r *Repo) ResolveRevision(ctx context.Context, rev string) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	return r.ResolveRevision(ctx, "HEAD")
}

func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SetIdentity configures the committer identity for this working copy.
func (r *Repo) SetIdentity(ctx context.Context, name, email string) error {
	if _, err := r.git(ctx, "config", "user.name", name); err != nil {
		return err
	}
	_, err := r.git(ctx, "config", "user.email", email)
	return err
}

func (r *Repo) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := r.git(ctx, args...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD for paths.
func (r *Repo) HasStagedChanges(ctx context.Context, paths ...string) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, paths...)
	res, err := r.run(ctx, args...)
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, proc.Check(r.command(args...), res, nil)
	}
}

// Commit records the index with message and returns the new HEAD SHA.
func (r *Repo) Commit(ctx context.Context, message string) (string, error) {
	if _, err := r.git(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	return r.HeadSHA(ctx)
}

// Push sends HEAD to branch on remote. No force, no retry.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	args := []string{"push", "--porcelain", remote, "HEAD:refs/heads/" + branch}
	res, err := r.run(ctx, args...)
	if err != nil {
		return err
	}
	if res.Success() {
		return nil
	}
	out := string(res.Tail)
	if isRejection(out) {
		return fmt.Errorf("%w: %s", ErrPushRejected, strings.TrimSpace(lastLines(out, 3)))
	}
	return proc.Check(r.command(args...), res, nil)
}

// RemoteHead returns the SHA the remote currently has for branch, or "" when
// the branch does not exist there.
func (r *Repo) RemoteHead(ctx context.Context, remote, branch string) (string, error) {
	out, err := r.git(ctx, "ls-remote", remote, "refs/heads/"+branch)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

func isRejection(out string) bool {
	for _, marker := range []string{"[rejected]", "non-fast-forward", "fetch first", "[remote rejected]"} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func (r *Repo) command(args ...string) proc.Command {
	return proc.Command{Name: "git", Args: args, Dir: r.dir, Env: r.environ(), Output: r.output}
}

func (r *Repo) environ() []string {
	env := r.env
	if env == nil {
		env = os.Environ()
	}
	env = append(append([]string(nil), env...), "GIT_TERMINAL_PROMPT=0")
	if r.token != "" {
		basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + r.token))
		// The empty first value clears extra headers inherited from the
		// repository config, such as credentials persisted by actions/checkout;
		// git rejects duplicate Authorization headers.
		env = append(env,
			"GIT_CONFIG_COUNT=2",
			"GIT_CONFIG_KEY_0="+authHeaderKey,
			"GIT_CONFIG_VALUE_0=",
			"GIT_CONFIG_KEY_1="+authHeaderKey,
			"GIT_CONFIG_VALUE_1=AUTHORIZATION: basic "+basic,
		)
	}
	return env
}

func (r *Repo) run(ctx context.Context, args ...string) (*proc.Result, error) {
	return r.runner.Run(ctx, r.command(args...))
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := r.command(args...)
	res, err := r.runner.Run(ctx, cmd)
	if err := proc.Check(cmd, res, err); err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(res.Stdout), nil
}

func (r *Repo) gitIn(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := r.command(args...)
	cmd.Dir = dir
	res, err := r.runner.Run(ctx, cmd)
	if err := proc.Check(cmd, res, err); err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(res.Stdout), nil
}
