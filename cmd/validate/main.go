// Command validate checks a pipeline YAML file without running it: every
// step must name a registered module.function and carry parameters that
// decode into that step's typed options. All problems are reported at once.
//
// Usage:
//
//	go run ./cmd/validate -config pipeline.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/hashicorp/go-multierror"
)

// nopPublisher lets the publisher step register so its parameters validate
// even when Kafka is disabled in this environment.
type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ []domain.PredictionRow) error { return nil }

func main() {
	configPath := flag.String("config", "", "pipeline YAML (default PIPELINE_CONFIG)")
	flag.Parse()

	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	path := *configPath
	if path == "" {
		path = cfg.PipelineConfig
	}

	os.Exit(run(cfg, path, os.Stdout))
}

func run(cfg *config.Config, path string, out io.Writer) int {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	components := pipeline.NewComponents(cfg, logger, observability.NewMetricsForTesting(), nopPublisher{})
	reg := pipeline.NewStepRegistry(components)

	fmt.Fprintf(out, "=== Pipeline Validation: %s ===\n\n", path)

	spec, err := pipeline.LoadSpec(path, reg)
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for i, e := range merr.Errors {
				fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
			}
		} else {
			fmt.Fprintf(out, "  %s\n", err)
		}
		fmt.Fprintln(out, "\nValidation FAILED.")
		return 1
	}

	for _, step := range spec.Steps {
		fmt.Fprintf(out, "  %-28s %-42s \033[32mOK\033[0m\n", step.Name, step.Module+"."+step.Function)
	}
	if !cfg.KafkaEnabled && usesPublisher(spec) {
		fmt.Fprintln(out, "\nWarning: publisher.publish_predictions is used but KAFKA_ENABLED is not true;")
		fmt.Fprintln(out, "the pipeline will fail to load where Kafka is disabled.")
	}

	fmt.Fprintf(out, "\n%d steps. All validations passed.\n", len(spec.Steps))
	return 0
}

func usesPublisher(spec *pipeline.Spec) bool {
	for _, s := range spec.Steps {
		if strings.HasPrefix(s.Module+"."+s.Function, "publisher.") {
			return true
		}
	}
	return false
}
