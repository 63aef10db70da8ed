package cli

import (
	"errors"
	"fmt"
	"os"

	"datadeploy/internal/config"
	"datadeploy/internal/flags"
	"datadeploy/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// cfg receives flag values; file values are merged underneath in resolveConfig.
var (
	cfg        = config.New()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "datadeploy",
	Short: "Refresh a data artifact in a git repository and push it when it changes",
	Long: `datadeploy keeps a generated data artifact current in the repository that
serves it. Every run walks the same chain:

	checkout -> setup -> install -> fetch -> verify -> commit -> notice

The first failing step stops the run. A run that produces an unchanged
artifact succeeds without committing.

Examples:
	# One run from the current checkout (what CI invokes)
	datadeploy run

	# Long-running: daily at 00:00 UTC plus GitHub push webhooks
	datadeploy serve --listen :8080

	# Inspect the chain and past runs
	datadeploy steps list
	datadeploy history list --history runs.db

Configuration:
	Flags override values from --config (default: ./datadeploy.yaml when present).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, flags.FlagConfig, "", "Path to a YAML config file (default: ./"+config.DefaultConfigFilename+" when present)")
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (debug level, prints every GitHub API call)")
	rootCmd.PersistentFlags().StringVar(&cfg.Runtime.LogLevel, flags.FlagLogLevel, cfg.Runtime.LogLevel, "Log level: debug|info|warn|error")
}

// resolveConfig layers explicitly set flags over the config file and validates
// the result. Logging is configured from the merged values.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigFilename); err == nil {
			path = config.DefaultConfigFilename
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", config.DefaultConfigFilename, err)
		}
	}

	merged := cfg
	if path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		merged = config.Overlay(file, cfg, cmd.Flags().Changed)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	configureLogging(merged)
	return merged, nil
}

func configureLogging(c *config.Config) {
	level, _ := logger.ParseLogLevel(c.Runtime.LogLevel)
	if c.Runtime.Verbose {
		level = zapcore.DebugLevel
	}
	logger.SetLevel(level)
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
