package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/parquetfile"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/etl"
	"github.com/couchcryptid/air-quality-etl/internal/generator"
	"github.com/couchcryptid/air-quality-etl/internal/model"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/report"
)

// PredictionPublisher sends a forecast to an external consumer.
type PredictionPublisher interface {
	Publish(ctx context.Context, rows []domain.PredictionRow) error
}

// Components are the services the built-in steps dispatch to.
type Components struct {
	DataDir        string
	PredictionsDir string
	Generator      *generator.Generator
	ETL            *etl.Engine
	Model          *model.Service
	Reports        *report.Writer
	Publisher      PredictionPublisher // nil leaves publisher.publish_predictions unregistered
	Metrics        *observability.Metrics
}

// Stable artifact names written on every run.
const (
	LatestFile  = "latest.csv"
	MetricsFile = "model_metrics.json"
)

// NewComponents wires every step service against the artifact layout in cfg.
func NewComponents(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, publisher PredictionPublisher) Components {
	processed := filepath.Join(cfg.DataDir(), etl.ProcessedFile)
	metricsPath := filepath.Join(cfg.ReportsDir(), MetricsFile)
	return Components{
		DataDir:        cfg.DataDir(),
		PredictionsDir: cfg.PredictionsDir(),
		Generator:      generator.New(cfg.DataDir(), logger.With("component", "generator")),
		ETL:            etl.New(cfg.DataDir(), logger.With("component", "etl")),
		Model: model.New(model.Defaults{
			DataPath:    processed,
			ModelPath:   filepath.Join(cfg.ModelsDir(), "aqi_model.json"),
			OutputPath:  filepath.Join(cfg.PredictionsDir(), "prediction_"+domain.DateToken+".csv"),
			MetricsPath: metricsPath,
			LatestPath:  filepath.Join(cfg.PredictionsDir(), LatestFile),
		}, logger.With("component", "model")),
		Reports: report.New(report.Options{
			PredictionPath: filepath.Join(cfg.PredictionsDir(), LatestFile),
			MetricsPath:    metricsPath,
			OutPath:        filepath.Join(cfg.ReportsDir(), "model_report_"+domain.DateToken+".xlsx"),
		}, logger.With("component", "report")),
		Publisher: publisher,
		Metrics:   metrics,
	}
}

// NewStepRegistry registers the built-in steps under their module.function names.
func NewStepRegistry(c Components) *Registry {
	r := NewRegistry()

	r.Register("data_generator", "generate_sensor_readings", Bind(sensorParams{Days: 30, Locations: 5, Freq: generator.FreqHourly},
		func(_ context.Context, p sensorParams) (any, error) {
			return c.Generator.GenerateSensorReadings(generator.SensorOptions(p))
		}))

	r.Register("data_generator", "generate_weather_data", Bind(weatherParams{Days: 30, Locations: 5},
		func(_ context.Context, p weatherParams) (any, error) {
			return c.Generator.GenerateWeatherData(generator.WeatherOptions(p))
		}))

	r.Register("etl", "run_etl", Bind(etlParams{AggFreq: etl.AggDaily},
		func(ctx context.Context, p etlParams) (any, error) {
			return c.ETL.Run(ctx, etl.Options(p))
		}))

	r.Register("model", "train", Bind(trainParams{TestSize: model.DefaultTestSize, Split: model.SplitTime, NEstimators: model.DefaultNEstimators},
		func(ctx context.Context, p trainParams) (any, error) {
			res, err := c.Model.Train(ctx, model.TrainOptions(p))
			if err != nil {
				return nil, err
			}
			c.Metrics.ModelRMSE.Set(res.RMSE)
			return res, nil
		}))

	r.Register("model", "predict_today", Bind(predictParams{},
		func(ctx context.Context, p predictParams) (any, error) {
			out, err := c.Model.PredictToday(ctx, model.PredictOptions(p))
			if err != nil {
				return nil, err
			}
			c.Metrics.PredictionsWritten.Inc()
			return out, nil
		}))

	r.Register("report", "write_model_report", Bind(reportParams{},
		func(ctx context.Context, p reportParams) (any, error) {
			return c.Reports.WriteModelReport(ctx, report.Options(p))
		}))

	r.Register("export", "write_parquet", Bind(parquetParams{},
		func(ctx context.Context, p parquetParams) (any, error) {
			return exportParquet(ctx, c.DataDir, p)
		}))

	if c.Publisher != nil {
		r.Register("publisher", "publish_predictions", Bind(publishParams{},
			func(ctx context.Context, p publishParams) (any, error) {
				path := domain.RenderPath(cmp.Or(p.PredictionPath, filepath.Join(c.PredictionsDir, LatestFile)))
				rows, err := csvstore.ReadPredictions(path)
				if err != nil {
					return nil, err
				}
				if err := c.Publisher.Publish(ctx, rows); err != nil {
					return nil, err
				}
				c.Metrics.PredictionsPublished.Add(float64(len(rows)))
				return len(rows), nil
			}))
	}

	return r
}

type sensorParams struct {
	Days      int    `mapstructure:"days"`
	Locations int    `mapstructure:"locations"`
	Freq      string `mapstructure:"freq"`
	OutPath   string `mapstructure:"out_path"`
	Seed      uint64 `mapstructure:"seed"`
}

func (p *sensorParams) validate() error {
	if p.Days < 1 || p.Locations < 1 {
		return generator.ErrInvalidOptions
	}
	if p.Freq != generator.FreqHourly && p.Freq != generator.FreqDaily {
		return fmt.Errorf("%w: %q", generator.ErrUnknownFrequency, p.Freq)
	}
	return nil
}

type weatherParams struct {
	Days      int    `mapstructure:"days"`
	Locations int    `mapstructure:"locations"`
	OutPath   string `mapstructure:"out_path"`
	Seed      uint64 `mapstructure:"seed"`
}

func (p *weatherParams) validate() error {
	if p.Days < 1 || p.Locations < 1 {
		return generator.ErrInvalidOptions
	}
	return nil
}

type etlParams struct {
	SensorPath  string `mapstructure:"sensor_path"`
	WeatherPath string `mapstructure:"weather_path"`
	OutPath     string `mapstructure:"out_path"`
	AggFreq     string `mapstructure:"agg_freq"`
}

func (p *etlParams) validate() error {
	if p.AggFreq != etl.AggDaily && p.AggFreq != etl.AggHourly {
		return fmt.Errorf("%w: %q", etl.ErrUnknownAggregation, p.AggFreq)
	}
	return nil
}

type trainParams struct {
	DataPath    string  `mapstructure:"data_path"`
	ModelPath   string  `mapstructure:"model_path"`
	TestSize    float64 `mapstructure:"test_size"`
	Split       string  `mapstructure:"split"`
	NEstimators int     `mapstructure:"n_estimators"`
	MaxDepth    int     `mapstructure:"max_depth"`
	MetricsPath string  `mapstructure:"metrics_path"`
}

func (p *trainParams) validate() error {
	if p.TestSize <= 0 || p.TestSize >= 1 {
		return fmt.Errorf("%w: %v", model.ErrInvalidTestSize, p.TestSize)
	}
	if p.Split != model.SplitTime && p.Split != model.SplitRandom {
		return fmt.Errorf("%w: %q", model.ErrUnknownSplit, p.Split)
	}
	if p.NEstimators < 1 || p.MaxDepth < 0 {
		return fmt.Errorf("n_estimators must be positive and max_depth non-negative")
	}
	return nil
}

type predictParams struct {
	ModelPath  string `mapstructure:"model_path"`
	DataPath   string `mapstructure:"data_path"`
	OutputPath string `mapstructure:"output_path"`
	LatestPath string `mapstructure:"latest_path"`
}

type reportParams struct {
	PredictionPath string `mapstructure:"prediction_path"`
	MetricsPath    string `mapstructure:"metrics_path"`
	OutPath        string `mapstructure:"out_path"`
}

type parquetParams struct {
	DataPath string `mapstructure:"data_path"`
	OutPath  string `mapstructure:"out_path"`
}

type publishParams struct {
	PredictionPath string `mapstructure:"prediction_path"`
}

func exportParquet(ctx context.Context, dataDir string, p parquetParams) (string, error) {
	in := domain.RenderPath(cmp.Or(p.DataPath, filepath.Join(dataDir, etl.ProcessedFile)))
	out := domain.RenderPath(cmp.Or(p.OutPath, filepath.Join(dataDir, "processed.parquet")))

	rows, err := csvstore.ReadFeatureRows(in)
	if err != nil {
		return "", fmt.Errorf("load features: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := parquetfile.WriteFeatureRows(out, rows); err != nil {
		return "", err
	}
	return out, nil
}
