// Package cmd provides the CLI commands for microblog.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/microblog/internal/app"
	"github.com/Aman-CERP/microblog/internal/config"
	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/logging"
	"github.com/Aman-CERP/microblog/internal/profiling"
	"github.com/Aman-CERP/microblog/pkg/version"
)

// Global flags
var (
	debugMode      bool
	configDir      string
	loggingCleanup func()

	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the microblog CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "microblog",
		Short: "Microblog server with full-text post search",
		Long: `microblog stores users and posts in SQLite and keeps a full-text
search index in sync with every committed write.

Run 'microblog serve' to start the HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("microblog version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.microblog/logs/")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding .microblog.yaml (default: current directory)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPostCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the default logger and starts any
// requested profiles. CLI commands log warnings only unless --debug is set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.Level = "warn"
	if debugMode {
		cfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileOpts.Enabled() {
		profiler, err = profiling.Start(profileOpts)
		if err != nil {
			return err
		}
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), merrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads configuration from --config-dir, or the working
// directory when unset.
func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = cwd
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, merrors.ConfigError("failed to load config", err).
			WithDetail("dir", dir).
			WithSuggestion("Run 'microblog config show --source defaults' to compare against the defaults")
	}
	return cfg, nil
}

// openApp loads configuration and opens the application.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.WithLogger(slog.Default()))
}

// dataDir is the directory holding the database file, used for lock files.
func dataDir(cfg *config.Config) string {
	if cfg.Database.Path == "" {
		return config.DataDir()
	}
	return filepath.Dir(cfg.Database.Path)
}
