// Command dashboard serves the web dashboard over the artifacts directory and
// the GitHub Actions remote control.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/github"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/dashboard"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

// Each GitHub API call gets this long; the overall poll is bounded by POLL_TIMEOUT.
const githubRequestTimeout = 30 * time.Second

func main() {
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.EnsureDirs(cfg); err != nil {
		slog.Error("failed to create artifact directories", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := observability.NewLogger(cfg)
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	defer closeLog() //nolint:errcheck // best-effort log file close
	metrics := observability.NewMetrics()

	// Remote control is feature-flagged on GITHUB_TOKEN / GITHUB_OWNER / GITHUB_REPO.
	var remote dashboard.RemoteControl
	if cfg.RemoteEnabled() {
		remote = github.NewClient(github.SettingsFromConfig(cfg), githubRequestTimeout, logger.With("component", "github"))
		logger.Info("remote control enabled",
			"repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo,
			"workflow", cfg.WorkflowFile,
			"branch", cfg.GitHubBranch,
		)
	} else {
		logger.Info("remote control disabled")
	}

	dash, err := dashboard.New(dashboard.DirsFromConfig(cfg), remote, metrics, logger.With("component", "dashboard"))
	if err != nil {
		logger.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, dash, logger,
		httpadapter.WithHandler(dash.Handler()),
		httpadapter.WithWriteTimeout(cfg.PollTimeout+time.Minute),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
