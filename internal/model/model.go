// Package model trains the next-day PM2.5 regressor and produces the daily
// per-location forecast.
package model

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Split policies for the held-out evaluation set.
const (
	SplitTime   = "time"
	SplitRandom = "random"
)

// Training defaults.
const (
	DefaultTestSize    = 0.2
	DefaultNEstimators = 100
	Seed               = 42
)

var (
	// ErrInsufficientData means fewer than two labelled examples are available.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrInvalidTestSize means test_size is outside (0, 1).
	ErrInvalidTestSize = errors.New("test size must be between 0 and 1")
	// ErrUnknownSplit means the split policy is neither time nor random.
	ErrUnknownSplit = errors.New("unknown split policy")
)

// Defaults are the artifact paths used when an option is left empty.
type Defaults struct {
	DataPath    string
	ModelPath   string
	OutputPath  string
	MetricsPath string
	LatestPath  string
}

// TrainOptions configures a training run.
type TrainOptions struct {
	DataPath    string
	ModelPath   string
	TestSize    float64
	Split       string
	NEstimators int
	MaxDepth    int
	MetricsPath string
}

// TrainResult is returned by Train.
type TrainResult struct {
	ModelPath string  `json:"model_path"`
	RMSE      float64 `json:"rmse"`
}

// TrainMetrics is the JSON report optionally written after training.
type TrainMetrics struct {
	ModelPath   string    `json:"model_path"`
	RMSE        float64   `json:"rmse"`
	Split       string    `json:"split"`
	TestSize    float64   `json:"test_size"`
	NEstimators int       `json:"n_estimators"`
	MaxDepth    int       `json:"max_depth,omitempty"`
	TrainRows   int       `json:"train_rows"`
	TestRows    int       `json:"test_rows"`
	Features    []string  `json:"features"`
	TrainedAt   time.Time `json:"trained_at"`
}

// PredictOptions configures a prediction run.
type PredictOptions struct {
	ModelPath  string
	DataPath   string
	OutputPath string
	LatestPath string
}

// Service trains and applies the forest against CSV artifacts.
type Service struct {
	defaults Defaults
	logger   *slog.Logger
}

// New creates a Service.
func New(defaults Defaults, logger *slog.Logger) *Service {
	return &Service{defaults: defaults, logger: logger}
}

// Train fits a forest on the feature table, evaluates it on the held-out
// split and persists it.
func (s *Service) Train(ctx context.Context, opts TrainOptions) (TrainResult, error) {
	opts = s.trainDefaults(opts)
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		return TrainResult{}, fmt.Errorf("%w: %v", ErrInvalidTestSize, opts.TestSize)
	}

	rows, err := csvstore.ReadFeatureRows(opts.DataPath)
	if err != nil {
		return TrainResult{}, fmt.Errorf("load features: %w", err)
	}
	examples := BuildExamples(rows)
	if len(examples) < 2 {
		return TrainResult{}, fmt.Errorf("%w: %d examples", ErrInsufficientData, len(examples))
	}
	train, test, err := SplitExamples(examples, opts.TestSize, opts.Split)
	if err != nil {
		return TrainResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return TrainResult{}, err
	}

	X, y := matrix(train)
	forest, err := Fit(domain.FeatureNames, X, y, ForestParams{NTrees: opts.NEstimators, MaxDepth: opts.MaxDepth, Seed: Seed})
	if err != nil {
		return TrainResult{}, fmt.Errorf("fit forest: %w", err)
	}

	testX, testY := matrix(test)
	pred := make([]float64, len(testX))
	for i, x := range testX {
		pred[i] = forest.Predict(x)
	}
	score := rmse(pred, testY)

	if err := forest.Save(opts.ModelPath); err != nil {
		return TrainResult{}, err
	}
	s.logger.Info("model saved",
		"path", opts.ModelPath,
		"rmse", score,
		"train_rows", len(train),
		"test_rows", len(test),
		"split", opts.Split,
	)

	if opts.MetricsPath != "" {
		report := TrainMetrics{
			ModelPath:   opts.ModelPath,
			RMSE:        score,
			Split:       opts.Split,
			TestSize:    opts.TestSize,
			NEstimators: opts.NEstimators,
			MaxDepth:    opts.MaxDepth,
			TrainRows:   len(train),
			TestRows:    len(test),
			Features:    domain.FeatureNames,
			TrainedAt:   domain.Clock().Now(),
		}
		if err := writeJSON(domain.RenderPath(opts.MetricsPath), report); err != nil {
			return TrainResult{}, err
		}
	}
	return TrainResult{ModelPath: opts.ModelPath, RMSE: score}, nil
}

// PredictToday scores each location's most recent feature row and writes the
// forecast. It returns the rendered output path.
func (s *Service) PredictToday(ctx context.Context, opts PredictOptions) (string, error) {
	opts = s.predictDefaults(opts)

	forest, err := LoadForest(opts.ModelPath, domain.FeatureNames)
	if err != nil {
		return "", err
	}
	rows, err := csvstore.ReadFeatureRows(opts.DataPath)
	if err != nil {
		return "", fmt.Errorf("load features: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("load features %s: %w", opts.DataPath, domain.ErrEmptyTable)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	latest := LatestPerLocation(rows)
	preds := make([]domain.PredictionRow, len(latest))
	for i, r := range latest {
		v := forest.Predict(r.Features())
		preds[i] = domain.PredictionRow{
			Location:        r.Location,
			Date:            r.Date,
			PM25PredNextDay: v,
			AQICategory:     domain.AQICategory(v),
		}
	}

	out := domain.RenderPath(opts.OutputPath)
	if err := csvstore.WritePredictions(out, preds); err != nil {
		return "", fmt.Errorf("write predictions: %w", err)
	}
	if opts.LatestPath != "" {
		if err := csvstore.WritePredictions(domain.RenderPath(opts.LatestPath), preds); err != nil {
			return "", fmt.Errorf("write latest predictions: %w", err)
		}
	}
	s.logger.Info("predictions saved", "path", out, "locations", len(preds))
	return out, nil
}

func (s *Service) trainDefaults(opts TrainOptions) TrainOptions {
	if opts.DataPath == "" {
		opts.DataPath = s.defaults.DataPath
	}
	if opts.ModelPath == "" {
		opts.ModelPath = s.defaults.ModelPath
	}
	if opts.TestSize == 0 {
		opts.TestSize = DefaultTestSize
	}
	if opts.Split == "" {
		opts.Split = SplitTime
	}
	if opts.NEstimators == 0 {
		opts.NEstimators = DefaultNEstimators
	}
	opts.MetricsPath = cmp.Or(opts.MetricsPath, s.defaults.MetricsPath)
	opts.DataPath = domain.RenderPath(opts.DataPath)
	opts.ModelPath = domain.RenderPath(opts.ModelPath)
	return opts
}

func (s *Service) predictDefaults(opts PredictOptions) PredictOptions {
	if opts.ModelPath == "" {
		opts.ModelPath = s.defaults.ModelPath
	}
	if opts.DataPath == "" {
		opts.DataPath = s.defaults.DataPath
	}
	if opts.OutputPath == "" {
		opts.OutputPath = s.defaults.OutputPath
	}
	opts.LatestPath = cmp.Or(opts.LatestPath, s.defaults.LatestPath)
	opts.ModelPath = domain.RenderPath(opts.ModelPath)
	opts.DataPath = domain.RenderPath(opts.DataPath)
	return opts
}

// BuildExamples labels each row with the next row's pm25_mean for the same
// location. The last row of every location has no label and is dropped, as
// are rows whose next-day value is missing.
func BuildExamples(rows []domain.DailyFeatureRow) []domain.TrainingExample {
	sorted := slices.Clone(rows)
	sortByLocationDate(sorted)

	var out []domain.TrainingExample
	for i := 0; i+1 < len(sorted); i++ {
		next := sorted[i+1]
		if next.Location != sorted[i].Location || math.IsNaN(next.PM25Mean) {
			continue
		}
		out = append(out, domain.TrainingExample{Row: sorted[i], PM25NextDay: next.PM25Mean})
	}
	return out
}

// LatestPerLocation returns the max-date row of every location, ordered by
// location.
func LatestPerLocation(rows []domain.DailyFeatureRow) []domain.DailyFeatureRow {
	latest := make(map[string]domain.DailyFeatureRow)
	for _, r := range rows {
		if cur, ok := latest[r.Location]; !ok || r.Date.After(cur.Date) {
			latest[r.Location] = r
		}
	}
	out := make([]domain.DailyFeatureRow, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.DailyFeatureRow) int { return cmp.Compare(a.Location, b.Location) })
	return out
}

// SplitExamples holds out ceil(testSize*n) examples, at least one and at most
// n-1. The time policy holds out the chronologically latest examples so the
// evaluation never trains on the future; the random policy shuffles with the
// fixed seed first.
func SplitExamples(examples []domain.TrainingExample, testSize float64, split string) (train, test []domain.TrainingExample, err error) {
	n := len(examples)
	nTest := min(max(int(math.Ceil(testSize*float64(n))), 1), n-1)

	ordered := slices.Clone(examples)
	switch split {
	case SplitTime, "":
		slices.SortStableFunc(ordered, func(a, b domain.TrainingExample) int {
			if c := a.Row.Date.Compare(b.Row.Date); c != 0 {
				return c
			}
			return cmp.Compare(a.Row.Location, b.Row.Location)
		})
		return ordered[:n-nTest], ordered[n-nTest:], nil
	case SplitRandom:
		rng := rand.New(rand.NewPCG(Seed, Seed))
		rng.Shuffle(n, func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
		return ordered[nTest:], ordered[:nTest], nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSplit, split)
	}
}

func sortByLocationDate(rows []domain.DailyFeatureRow) {
	slices.SortStableFunc(rows, func(a, b domain.DailyFeatureRow) int {
		if c := cmp.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})
}

func matrix(examples []domain.TrainingExample) ([][]float64, []float64) {
	X := make([][]float64, len(examples))
	y := make([]float64, len(examples))
	for i, e := range examples {
		X[i] = e.Row.Features()
		y[i] = e.PM25NextDay
	}
	return X, y
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadTrainMetrics loads a metrics report written by Train.
func ReadTrainMetrics(path string) (TrainMetrics, error) {
	var m TrainMetrics
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read metrics %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode metrics %s: %w", path, err)
	}
	return m, nil
}
