package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/microblog/internal/api"
	"github.com/Aman-CERP/microblog/internal/app"
	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Opens the database and the configured search backend, provisions the
search indexes, then serves until interrupted. In-flight requests are
drained on SIGINT or SIGTERM.`,
		Example: `  microblog serve
  microblog serve --addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")

	return cmd
}

func runServe(ctx context.Context, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := slog.Default()
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		l, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
		logger = l
	}

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("app_close_failed", "error", err)
		}
	}()

	if err := provisionIndexes(ctx, a, logger); err != nil {
		// Writes still succeed without an index; queries surface the failure.
		logger.Error("search_index_provision_failed", "error", err)
	}

	logger.Info("server_starting",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"search_backend", cfg.Search.Backend)

	return api.NewServer(a).ListenAndServe(ctx, cfg.Server.Addr,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, shutdownTimeout)
}

// provisionIndexes retries while a remote backend is still starting. An
// open circuit ends the retries early.
func provisionIndexes(ctx context.Context, a *app.App, logger *slog.Logger) error {
	retry := merrors.DefaultRetryConfig()
	retry.Jitter = true
	retry.RetryIf = func(err error) bool {
		if errors.Is(err, merrors.ErrCircuitOpen) {
			return false
		}
		logger.Warn("search_index_provision_retry", "error", err)
		return true
	}
	return merrors.Retry(ctx, retry, func() error {
		return a.EnsureIndexes(ctx)
	})
}
