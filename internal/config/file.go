package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"datadeploy/internal/flags"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFilename is read when --config is not given and the file exists.
const DefaultConfigFilename = "datadeploy.yaml"

// LoadFile reads a YAML config file on top of New() defaults. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadFile(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := New()
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// fieldCopier copies the field bound to one CLI flag from src to dst.
type fieldCopier func(dst, src *Config)

var flagFields = map[string]fieldCopier{
	flags.FlagVerbose:  func(d, s *Config) { d.Runtime.Verbose = s.Runtime.Verbose },
	flags.FlagLogLevel: func(d, s *Config) { d.Runtime.LogLevel = s.Runtime.LogLevel },

	flags.FlagRepoURL: func(d, s *Config) { d.Repository.URL = s.Repository.URL },
	flags.FlagBranch:  func(d, s *Config) { d.Repository.Branch = s.Repository.Branch },
	flags.FlagWorkDir: func(d, s *Config) { d.Repository.WorkDir = s.Repository.WorkDir },
	flags.FlagRemote:  func(d, s *Config) { d.Repository.Remote = s.Repository.Remote },

	flags.FlagInterpreter: func(d, s *Config) { d.Workflow.Interpreter = s.Workflow.Interpreter },
	flags.FlagVersion:     func(d, s *Config) { d.Workflow.Version = s.Workflow.Version },
	flags.FlagManifest:    func(d, s *Config) { d.Workflow.Manifest = s.Workflow.Manifest },
	flags.FlagInstall:     func(d, s *Config) { d.Workflow.Install = s.Workflow.Install },
	flags.FlagFetch:       func(d, s *Config) { d.Workflow.Fetch = s.Workflow.Fetch },
	flags.FlagArtifact:    func(d, s *Config) { d.Workflow.Artifact = s.Workflow.Artifact },
	flags.FlagPreviewRows: func(d, s *Config) { d.Workflow.PreviewRows = s.Workflow.PreviewRows },

	flags.FlagAuthorName:    func(d, s *Config) { d.Git.AuthorName = s.Git.AuthorName },
	flags.FlagEmailEnv:      func(d, s *Config) { d.Git.EmailEnv = s.Git.EmailEnv },
	flags.FlagTokenEnv:      func(d, s *Config) { d.Git.TokenEnv = s.Git.TokenEnv },
	flags.FlagCommitMessage: func(d, s *Config) { d.Git.CommitMessage = s.Git.CommitMessage },

	flags.FlagCron:      func(d, s *Config) { d.Schedule.Cron = s.Schedule.Cron },
	flags.FlagTimezone:  func(d, s *Config) { d.Schedule.Timezone = s.Schedule.Timezone },
	flags.FlagListen:    func(d, s *Config) { d.Schedule.Listen = s.Schedule.Listen },
	flags.FlagHookPath:  func(d, s *Config) { d.Schedule.WebhookPath = s.Schedule.WebhookPath },
	flags.FlagQueueSize: func(d, s *Config) { d.Schedule.QueueSize = s.Schedule.QueueSize },

	flags.FlagConsoleFormat: func(d, s *Config) { d.Output.ConsoleFormat = s.Output.ConsoleFormat },
	flags.FlagOut:           func(d, s *Config) { d.Output.Out = s.Output.Out },
	flags.FlagOutFormat:     func(d, s *Config) { d.Output.OutFormat = s.Output.OutFormat },
	flags.FlagEmit:          func(d, s *Config) { d.Output.Emit = append([]string(nil), s.Output.Emit...) },
	flags.FlagNoConsole:     func(d, s *Config) { d.Output.NoConsole = s.Output.NoConsole },
	flags.FlagSummary:       func(d, s *Config) { d.Output.Summary = s.Output.Summary },

	flags.FlagTimeout: func(d, s *Config) { d.Runtime.Timeout = s.Runtime.Timeout },
	flags.FlagHistory: func(d, s *Config) { d.Runtime.History = s.Runtime.History },
}

// Overlay returns file with every explicitly set flag value from flagged
// copied on top. changed reports whether a flag was set on the command line.
func Overlay(file, flagged *Config, changed func(flag string) bool) *Config {
	if file == nil {
		return flagged
	}
	out := *file
	out.Output.Emit = append([]string(nil), file.Output.Emit...)
	for name, copyField := range flagFields {
		if changed != nil && changed(name) {
			copyField(&out, flagged)
		}
	}
	return &out
}
