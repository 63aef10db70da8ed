package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultBranch        = "main"
	DefaultRemote        = "origin"
	DefaultInterpreter   = "python"
	DefaultVersion       = "3.11"
	DefaultManifest      = "requirements.txt"
	DefaultFetchScript   = "fetch_data.py"
	DefaultArtifact      = "data.parquet"
	DefaultPreviewRows   = 5
	DefaultAuthorName    = "github-actions[bot]"
	DefaultEmailEnv      = "EMAIL"
	DefaultTokenEnv      = "GITHUB_TOKEN"
	DefaultCommitMessage = "Update data.parquet"
	DefaultNotice        = "Streamlit Community Cloud redeploys automatically when main changes; nothing else to do."
	DefaultCron          = "0 0 * * *"
	DefaultTimezone      = "UTC"
	DefaultListen        = ":8080"
	DefaultWebhookPath   = "/webhook"
	DefaultSecretEnv     = "WEBHOOK_SECRET"
	DefaultQueueSize     = 16
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli/root.go, run.go, serve.go and history.go
	// - file merge table in internal/config/file.go
	Repository Repository `yaml:"repository"`
	Workflow   Workflow   `yaml:"workflow"`
	Git        Git        `yaml:"git"`
	Schedule   Schedule   `yaml:"schedule"`
	Output     Output     `yaml:"output"`
	Runtime    Runtime    `yaml:"runtime"`
}

type Repository struct {
	// URL is the clone URL. When empty, WorkDir must already be a checkout and
	// its remote is used as-is.
	URL string `yaml:"url"`

	// Slug is OWNER/REPO for GitHub API calls. Inferred from URL (or the
	// checkout's remote) when empty.
	Slug string `yaml:"slug"`

	// Branch is the branch runs check out and push to.
	Branch string `yaml:"branch"`

	// Remote is the git remote name used for fetch and push.
	Remote string `yaml:"remote"`

	// WorkDir is the working copy location.
	WorkDir string `yaml:"workdir"`
}

type Workflow struct {
	// Interpreter is the runtime binary the install and fetch commands rely on.
	Interpreter string `yaml:"interpreter"`

	// Version pins the interpreter version (dotted prefix match). Empty accepts any.
	Version string `yaml:"version"`

	// Manifest is the dependency manifest consumed by the install command.
	Manifest string `yaml:"manifest"`

	// Install is the dependency install shell command.
	Install string `yaml:"install"`

	// Fetch is the shell command that produces the artifact. It is run with no arguments.
	Fetch string `yaml:"fetch"`

	// Artifact is the produced file, relative to WorkDir.
	Artifact string `yaml:"artifact"`

	// PreviewRows is how many leading rows the verify step prints.
	PreviewRows int `yaml:"preview_rows"`

	// Notice is the message printed by the terminal step.
	Notice string `yaml:"notice"`
}

type Git struct {
	// AuthorName is the bot identity used for commits.
	AuthorName string `yaml:"author_name"`

	// EmailEnv names the environment variable holding the bot email.
	EmailEnv string `yaml:"email_env"`

	// TokenEnv names the environment variable holding the push token.
	TokenEnv string `yaml:"token_env"`

	// CommitMessage is the fixed commit message.
	CommitMessage string `yaml:"commit_message"`
}

type Schedule struct {
	// Cron is a standard 5-field cron expression.
	Cron string `yaml:"cron"`

	// Timezone is the IANA zone the cron expression is evaluated in.
	Timezone string `yaml:"timezone"`

	// Listen is the webhook listener address for serve mode. Empty disables the webhook.
	Listen string `yaml:"listen"`

	// WebhookPath is the HTTP path GitHub delivers push events to.
	WebhookPath string `yaml:"webhook_path"`

	// SecretEnv names the environment variable holding the webhook secret.
	SecretEnv string `yaml:"secret_env"`

	// QueueSize bounds pending triggers in serve mode.
	QueueSize int `yaml:"queue_size"`
}

type Output struct {
	// ConsoleFormat controls the console sink format: text, json, ndjson.
	ConsoleFormat string `yaml:"console_format"`

	// Out writes structured output to this path.
	Out string `yaml:"out"`

	// OutFormat selects the format for Out: json, ndjson. Inferred from the extension when empty.
	OutFormat string `yaml:"out_format"`

	// Emit writes additional structured streams to stdout: json, ndjson.
	Emit []string `yaml:"emit"`

	// NoConsole suppresses the console sink.
	NoConsole bool `yaml:"no_console"`

	// Summary writes a Markdown run summary to this path (e.g. $GITHUB_STEP_SUMMARY).
	Summary string `yaml:"summary"`
}

type Runtime struct {
	// Timeout bounds a whole run. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Verbose enables debug logging and GitHub API request logging.
	Verbose bool `yaml:"verbose"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// History is the SQLite run ledger path. Empty disables the ledger.
	History string `yaml:"history"`
}

func New() *Config {
	return &Config{
		Repository: Repository{
			Branch:  DefaultBranch,
			Remote:  DefaultRemote,
			WorkDir: ".",
		},
		Workflow: Workflow{
			Interpreter: DefaultInterpreter,
			Version:     DefaultVersion,
			Manifest:    DefaultManifest,
			Artifact:    DefaultArtifact,
			PreviewRows: DefaultPreviewRows,
			Notice:      DefaultNotice,
		},
		Git: Git{
			AuthorName:    DefaultAuthorName,
			EmailEnv:      DefaultEmailEnv,
			TokenEnv:      DefaultTokenEnv,
			CommitMessage: DefaultCommitMessage,
		},
		Schedule: Schedule{
			Cron:        DefaultCron,
			Timezone:    DefaultTimezone,
			Listen:      DefaultListen,
			WebhookPath: DefaultWebhookPath,
			SecretEnv:   DefaultSecretEnv,
			QueueSize:   DefaultQueueSize,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			LogLevel: "info",
		},
	}
}

func (c *Config) Validate() error {
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Repository
	c.Repository.URL = strings.TrimSpace(c.Repository.URL)
	c.Repository.Branch = strings.TrimSpace(c.Repository.Branch)
	if c.Repository.Branch == "" {
		c.Repository.Branch = DefaultBranch
	}
	if strings.HasPrefix(c.Repository.Branch, "refs/") || strings.ContainsAny(c.Repository.Branch, " \t~^:?*[\\") {
		return fmt.Errorf("invalid --branch: %q", c.Repository.Branch)
	}
	if strings.TrimSpace(c.Repository.Remote) == "" {
		c.Repository.Remote = DefaultRemote
	}
	if strings.TrimSpace(c.Repository.WorkDir) == "" {
		c.Repository.WorkDir = "."
	}
	c.Repository.WorkDir = filepath.Clean(c.Repository.WorkDir)
	if c.Repository.Slug == "" && c.Repository.URL != "" {
		// Non-GitHub remotes simply have no slug.
		c.Repository.Slug, _ = SlugFromRemoteURL(c.Repository.URL)
	}
	if c.Repository.Slug != "" {
		slug, err := normalizeSlug(c.Repository.Slug)
		if err != nil {
			return fmt.Errorf("invalid repository slug: %w", err)
		}
		c.Repository.Slug = slug
	}

	// Workflow
	c.Workflow.Interpreter = strings.TrimSpace(c.Workflow.Interpreter)
	if c.Workflow.Interpreter == "" {
		return errors.New("--interpreter must not be empty")
	}
	c.Workflow.Version = strings.TrimPrefix(strings.TrimSpace(c.Workflow.Version), "v")
	if c.Workflow.Manifest == "" {
		c.Workflow.Manifest = DefaultManifest
	}
	if strings.TrimSpace(c.Workflow.Install) == "" {
		c.Workflow.Install = fmt.Sprintf("%s -m pip install -r %s", c.Workflow.Interpreter, c.Workflow.Manifest)
	}
	if strings.TrimSpace(c.Workflow.Fetch) == "" {
		c.Workflow.Fetch = fmt.Sprintf("%s %s", c.Workflow.Interpreter, DefaultFetchScript)
	}
	if strings.TrimSpace(c.Workflow.Artifact) == "" {
		return errors.New("--artifact must not be empty")
	}
	if clean := path.Clean(filepath.ToSlash(c.Workflow.Artifact)); filepath.IsAbs(c.Workflow.Artifact) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("--artifact must be a path inside the working copy, got %q", c.Workflow.Artifact)
	}
	if c.Workflow.PreviewRows < 0 {
		return errors.New("--preview-rows must be >= 0")
	}

	// Git
	if strings.TrimSpace(c.Git.AuthorName) == "" {
		return errors.New("--author-name must not be empty")
	}
	if strings.TrimSpace(c.Git.CommitMessage) == "" {
		return errors.New("--commit-message must not be empty")
	}
	if c.Git.EmailEnv == "" {
		c.Git.EmailEnv = DefaultEmailEnv
	}
	if c.Git.TokenEnv == "" {
		c.Git.TokenEnv = DefaultTokenEnv
	}

	// Schedule
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultCron
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("invalid --cron %q: %w", c.Schedule.Cron, err)
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid --timezone %q: %w", c.Schedule.Timezone, err)
	}
	if c.Schedule.WebhookPath == "" {
		c.Schedule.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(c.Schedule.WebhookPath, "/") {
		c.Schedule.WebhookPath = "/" + c.Schedule.WebhookPath
	}
	if c.Schedule.SecretEnv == "" {
		c.Schedule.SecretEnv = DefaultSecretEnv
	}
	if c.Schedule.QueueSize <= 0 {
		return errors.New("--queue-size must be >= 1")
	}

	// Output
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		c.Output.ConsoleFormat = "text"
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}
	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
	}
	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	switch c.Runtime.LogLevel {
	case "":
		c.Runtime.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Runtime.LogLevel)
	}

	return nil
}

// Owner and Name split Repository.Slug. Both are empty when no slug is known.
func (r Repository) Owner() string {
	owner, _, _ := strings.Cut(r.Slug, "/")
	return owner
}

func (r Repository) Name() string {
	_, name, _ := strings.Cut(r.Slug, "/")
	return name
}

// SlugFromRemoteURL extracts OWNER/REPO from a GitHub remote URL. It accepts
// https, ssh and scp-like forms and reports false for other hosts.
func SlugFromRemoteURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	var host, p string
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		host = u.Hostname()
		p = u.Path
	} else if at := strings.Index(raw, "@"); at >= 0 && strings.Contains(raw[at:], ":") {
		// git@github.com:owner/repo.git
		hostPath := raw[at+1:]
		host, p, _ = strings.Cut(hostPath, ":")
	} else {
		return "", false
	}

	host = strings.ToLower(host)
	if host != "github.com" && host != "www.github.com" {
		return "", false
	}
	parts := strings.FieldsFunc(strings.Trim(p, "/"), func(r rune) bool { return r == '/' })
	if len(parts) != 2 {
		return "", false
	}
	name := strings.TrimSuffix(parts[1], ".git")
	if parts[0] == "" || name == "" {
		return "", false
	}
	return parts[0] + "/" + name, true
}

func normalizeSlug(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	owner, name, ok := strings.Cut(raw, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%q: expected OWNER/REPO", raw)
	}
	return owner + "/" + strings.TrimSuffix(name, ".git"), nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
