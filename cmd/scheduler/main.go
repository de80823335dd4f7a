// Command scheduler runs the pipeline at startup and then daily at
// SCHEDULE_HOUR:SCHEDULE_MINUTE local time, serving health and metrics
// endpoints until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/couchcryptid/air-quality-etl/internal/scheduler"
)

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
	code := run(cfg, logger)
	closeLog() //nolint:errcheck // best-effort log file close
	os.Exit(code)
}

func run(cfg *config.Config, logger *slog.Logger) int {
	metrics := observability.NewMetrics()

	var publisher pipeline.PredictionPublisher
	if cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = p
		logger.Info("kafka publication enabled", "topic", cfg.KafkaPredictionTopic)
	}

	reg := pipeline.NewStepRegistry(pipeline.NewComponents(cfg, logger, metrics, publisher))
	runner := pipeline.NewRunner(logger, metrics)

	job := func(ctx context.Context) error {
		_, err := runner.RunFile(ctx, cfg.PipelineConfig, reg)
		return err
	}
	sched, err := scheduler.New(cfg.ScheduleHour, cfg.ScheduleMinute, job, logger.With("component", "scheduler"))
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		return 1
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Initial run, then the daily schedule. Blocks until shutdown.
	code := 0
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		code = 1
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return code
}
