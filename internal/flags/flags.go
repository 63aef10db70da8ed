package flags

// Package flags defines canonical CLI flag names shared by the cobra wiring
// and the config file loader, which uses them to decide whether a flag value
// overrides a file value.
// IMPORTANT: These are flag *names* without leading dashes.
const (
	// Global
	FlagConfig   = "config"
	FlagVerbose  = "verbose"
	FlagLogLevel = "log-level"

	// Repository
	FlagRepoURL = "repo-url"
	FlagBranch  = "branch"
	FlagWorkDir = "workdir"
	FlagRemote  = "remote"

	// Trigger
	FlagTrigger  = "trigger"
	FlagRevision = "revision"

	// Workflow
	FlagInterpreter = "interpreter"
	FlagVersion     = "python-version"
	FlagManifest    = "manifest"
	FlagInstall     = "install-cmd"
	FlagFetch       = "fetch-cmd"
	FlagArtifact    = "artifact"
	FlagPreviewRows = "preview-rows"

	// Git identity
	FlagAuthorName    = "author-name"
	FlagEmailEnv      = "email-env"
	FlagTokenEnv      = "token-env"
	FlagCommitMessage = "commit-message"

	// Serve
	FlagCron      = "cron"
	FlagTimezone  = "timezone"
	FlagListen    = "listen"
	FlagHookPath  = "webhook-path"
	FlagQueueSize = "queue-size"

	// Output
	FlagConsoleFormat = "console-format"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagEmit          = "emit"
	FlagNoConsole     = "no-console"
	FlagSummary       = "summary"

	// Runtime
	FlagTimeout = "timeout"
	FlagHistory = "history"
)
