package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"datadeploy/internal/config"
	"datadeploy/internal/engine"
	"datadeploy/internal/flags"
	gh "datadeploy/internal/github"
	"datadeploy/internal/gitrepo"
	"datadeploy/internal/logger"
	"datadeploy/internal/proc"
	"datadeploy/internal/trigger"

	"github.com/spf13/cobra"
)

var (
	runTrigger  string
	runRevision string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the deployment chain once",
	Long: `Execute the deployment chain once and exit.

The working copy (--workdir) is cloned from --repo-url when it is not a git
repository yet, otherwise it is fetched and checked out at the branch head,
or at --revision for push triggers.

Authentication:
	Fetch and push use the token in $GITHUB_TOKEN (see --token-env), falling
	back to GitHub CLI authentication (gh auth token). The commit email is read
	from $EMAIL (see --email-env).

Trigger:
	--trigger defaults to the GitHub Actions event when $GITHUB_EVENT_NAME is
	set (push, schedule, workflow_dispatch) and to manual otherwise. The chain
	is the same for every trigger.

Exit codes:
	0 = run succeeded (committed or unchanged)
	1 = a step failed
	3 = fatal error (the chain did not run)

Examples:
	# CI: run in the checked-out repository
	datadeploy run

	# Local dry run against a scratch clone, machine-readable events
	datadeploy run --repo-url https://github.com/acme/spreads --workdir /tmp/spreads \
		--no-console --emit ndjson
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runOnce(cmd))
	},
}

func runOnce(cmd *cobra.Command) int {
	c, err := resolveConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	ev, err := eventFor(cmd, c.Repository.Branch, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng, err := newEngine(ctx, c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	return eng.Run(ctx, c, ev)
}

// eventFor builds the trigger event from --trigger/--revision, or from the
// GitHub Actions environment when --trigger is not given.
func eventFor(cmd *cobra.Command, branch string, getenv func(string) string) (trigger.Event, error) {
	name := runTrigger
	revision := runRevision
	if !cmd.Flags().Changed(flags.FlagTrigger) {
		switch getenv("GITHUB_EVENT_NAME") {
		case "push":
			name = string(trigger.KindPush)
			if revision == "" {
				revision = getenv("GITHUB_SHA")
			}
		case "schedule":
			name = string(trigger.KindSchedule)
		}
	}
	kind, err := trigger.ParseKind(name)
	if err != nil {
		return trigger.Event{}, err
	}
	if kind != trigger.KindPush && revision != "" {
		return trigger.Event{}, fmt.Errorf("--%s only applies to push triggers", flags.FlagRevision)
	}
	ev := trigger.NewEvent(kind, revision)
	if kind == trigger.KindPush {
		ev.Ref = "refs/heads/" + branch
	}
	return ev, nil
}

// newEngine resolves the token, infers the repository slug and builds the
// GitHub client used for branch confirmation.
func newEngine(ctx context.Context, c *config.Config) (*engine.Engine, error) {
	token, source, err := gh.ResolveAuthToken(ctx, "", c.Git.TokenEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitHub auth token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		logger.WarnKV(ctx, "no GitHub token found; pushes rely on the remote's own credentials", "env", c.Git.TokenEnv)
	} else {
		logger.DebugKV(ctx, "resolved GitHub token", "source", string(source))
	}

	if c.Repository.Slug == "" {
		c.Repository.Slug = inferSlug(ctx, c)
	}

	var client *gh.Client
	if token != "" && c.Repository.Slug != "" {
		client, err = gh.NewClient(ctx, token,
			gh.WithUserAgent(userAgent()),
			gh.WithVerbose(c.Runtime.Verbose, nil),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
	}
	return engine.NewEngine(client, token), nil
}

func userAgent() string {
	return gh.DefaultUserAgent + "/" + buildVersion
}

// inferSlug reads OWNER/REPO from an existing checkout's remote. Empty when
// the working copy does not exist yet or the remote is not on GitHub.
func inferSlug(ctx context.Context, c *config.Config) string {
	repo := gitrepo.Open(c.Repository.WorkDir, proc.NewExecRunner())
	if !repo.IsRepository() {
		return ""
	}
	remoteURL, err := repo.RemoteURL(ctx, c.Repository.Remote)
	if err != nil {
		logger.DebugKV(ctx, "cannot read remote url", "remote", c.Repository.Remote, "error", err)
		return ""
	}
	slug, _ := config.SlugFromRemoteURL(remoteURL)
	return slug
}

// bindChainFlags registers the flags shared by run and serve.
func bindChainFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	// Repository
	f.StringVar(&cfg.Repository.URL, flags.FlagRepoURL, "", "Clone URL used when --workdir is not a git repository")
	f.StringVar(&cfg.Repository.Branch, flags.FlagBranch, config.DefaultBranch, "Branch to check out and push to")
	f.StringVar(&cfg.Repository.WorkDir, flags.FlagWorkDir, ".", "Working copy directory")
	f.StringVar(&cfg.Repository.Remote, flags.FlagRemote, config.DefaultRemote, "Git remote used for fetch and push")

	// Workflow
	f.StringVar(&cfg.Workflow.Interpreter, flags.FlagInterpreter, config.DefaultInterpreter, "Interpreter binary the install and fetch commands use")
	f.StringVar(&cfg.Workflow.Version, flags.FlagVersion, config.DefaultVersion, "Required interpreter version prefix (empty accepts any)")
	f.StringVar(&cfg.Workflow.Manifest, flags.FlagManifest, config.DefaultManifest, "Dependency manifest, relative to --workdir")
	f.StringVar(&cfg.Workflow.Install, flags.FlagInstall, "", "Dependency install command (default: <interpreter> -m pip install -r <manifest>)")
	f.StringVar(&cfg.Workflow.Fetch, flags.FlagFetch, "", "Command that writes the artifact (default: <interpreter> "+config.DefaultFetchScript+")")
	f.StringVar(&cfg.Workflow.Artifact, flags.FlagArtifact, config.DefaultArtifact, "Artifact path, relative to --workdir")
	f.IntVar(&cfg.Workflow.PreviewRows, flags.FlagPreviewRows, config.DefaultPreviewRows, "Leading artifact rows printed by the verify step")

	// Git identity
	f.StringVar(&cfg.Git.AuthorName, flags.FlagAuthorName, config.DefaultAuthorName, "Commit author name")
	f.StringVar(&cfg.Git.EmailEnv, flags.FlagEmailEnv, config.DefaultEmailEnv, "Environment variable holding the commit email")
	f.StringVar(&cfg.Git.TokenEnv, flags.FlagTokenEnv, config.DefaultTokenEnv, "Environment variable holding the push token")
	f.StringVar(&cfg.Git.CommitMessage, flags.FlagCommitMessage, config.DefaultCommitMessage, "Commit message")

	// Output
	f.StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson")
	f.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	f.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	f.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	f.BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out)")
	f.StringVar(&cfg.Output.Summary, flags.FlagSummary, "", "Append a Markdown run summary to this path (e.g. $GITHUB_STEP_SUMMARY)")

	// Runtime
	f.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, 0, "Bound on a whole run (0 = no timeout)")
	f.StringVar(&cfg.Runtime.History, flags.FlagHistory, "", "Record runs in this SQLite ledger")
}

func init() {
	rootCmd.AddCommand(runCmd)
	bindChainFlags(runCmd)
	runCmd.Flags().StringVar(&runTrigger, flags.FlagTrigger, "manual", "Trigger kind: push|schedule|manual")
	runCmd.Flags().StringVar(&runRevision, flags.FlagRevision, "", "Commit to check out for push triggers (default: branch head)")
}
