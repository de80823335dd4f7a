// Command pipeline runs the YAML-defined pipeline once and exits non-zero if
// any step fails.
//
// Usage:
//
//	go run ./cmd/pipeline -config pipeline.yaml
package main

import (
	"cmp"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	kafkaadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "pipeline YAML (default PIPELINE_CONFIG)")
	flag.Parse()

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
	os.Exit(run(cfg, cmp.Or(*configPath, cfg.PipelineConfig), logger, closeLog))
}

func run(cfg *config.Config, path string, logger *slog.Logger, closeLog func() error) int {
	defer closeLog() //nolint:errcheck // best-effort log file close
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
	}

	reg := pipeline.NewStepRegistry(pipeline.NewComponents(cfg, logger, metrics, publisher))
	runner := pipeline.NewRunner(logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := runner.RunFile(ctx, path, reg); err != nil {
		logger.Error("pipeline failed", "error", err)
		return 1
	}
	return 0
}
