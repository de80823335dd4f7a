// Package etl turns raw sensor and weather readings into the per-location
// feature table the model trains on.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Aggregation frequencies.
const (
	AggDaily  = "daily"
	AggHourly = "hourly"
)

// ProcessedFile is the default feature table name under the data directory.
const ProcessedFile = "processed.csv"

// ErrUnknownAggregation means agg_freq is neither daily nor hourly.
var ErrUnknownAggregation = errors.New("unknown aggregation frequency")

func unknownAggregation(freq string) error {
	return fmt.Errorf("%w: %q", ErrUnknownAggregation, freq)
}

// Options locates the inputs and output of one ETL run. Empty paths default
// to the data directory layout.
type Options struct {
	SensorPath  string
	WeatherPath string
	OutPath     string
	AggFreq     string
}

// Engine runs the feature pipeline against CSV artifacts.
type Engine struct {
	dataDir string
	logger  *slog.Logger
}

// New creates an Engine rooted at dataDir.
func New(dataDir string, logger *slog.Logger) *Engine {
	return &Engine{dataDir: dataDir, logger: logger}
}

// Run reads both inputs, builds the feature table and writes it. It returns
// the output path.
func (e *Engine) Run(ctx context.Context, opts Options) (string, error) {
	if opts.AggFreq == "" {
		opts.AggFreq = AggDaily
	}
	if opts.AggFreq != AggDaily && opts.AggFreq != AggHourly {
		return "", unknownAggregation(opts.AggFreq)
	}
	sensorPath := e.path(opts.SensorPath, "sensor_readings.csv")
	weatherPath := e.path(opts.WeatherPath, "weather.csv")
	outPath := e.path(opts.OutPath, ProcessedFile)

	sensors, err := csvstore.ReadSensorReadings(sensorPath)
	if err != nil {
		return "", fmt.Errorf("load sensor readings: %w", err)
	}
	if len(sensors) == 0 {
		return "", fmt.Errorf("load sensor readings %s: %w", sensorPath, domain.ErrEmptyTable)
	}
	weather, err := csvstore.ReadWeatherReadings(weatherPath)
	if err != nil {
		return "", fmt.Errorf("load weather data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rows, err := BuildFeatures(sensors, weather, opts.AggFreq)
	if err != nil {
		return "", err
	}
	if err := csvstore.WriteFeatureRows(outPath, rows, opts.AggFreq == AggHourly); err != nil {
		return "", fmt.Errorf("write features: %w", err)
	}

	e.logger.Info("etl complete", "path", outPath, "rows", len(rows), "agg_freq", opts.AggFreq)
	return outPath, nil
}

func (e *Engine) path(path, name string) string {
	if path == "" {
		return filepath.Join(e.dataDir, name)
	}
	return domain.RenderPath(path)
}
