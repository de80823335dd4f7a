// Package report renders the latest forecast and model metrics as an XLSX
// workbook in the reports directory.
package report

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/model"
)

// Sheet names.
const (
	PredictionsSheet = "Predictions"
	SummarySheet     = "Summary"
	ModelSheet       = "Model"
)

// Options locates the report inputs and output. Empty fields fall back to
// the Writer defaults; an empty MetricsPath after defaults omits the model sheet.
type Options struct {
	PredictionPath string
	MetricsPath    string
	OutPath        string
}

// Writer produces model reports.
type Writer struct {
	defaults Options
	logger   *slog.Logger
}

// New creates a Writer.
func New(defaults Options, logger *slog.Logger) *Writer {
	return &Writer{defaults: defaults, logger: logger}
}

// WriteModelReport builds the workbook and returns its path.
func (w *Writer) WriteModelReport(ctx context.Context, opts Options) (string, error) {
	opts.PredictionPath = domain.RenderPath(cmp.Or(opts.PredictionPath, w.defaults.PredictionPath))
	opts.MetricsPath = domain.RenderPath(cmp.Or(opts.MetricsPath, w.defaults.MetricsPath))
	opts.OutPath = domain.RenderPath(cmp.Or(opts.OutPath, w.defaults.OutPath))

	preds, err := csvstore.ReadPredictions(opts.PredictionPath)
	if err != nil {
		return "", fmt.Errorf("load predictions: %w", err)
	}
	var metrics *model.TrainMetrics
	if opts.MetricsPath != "" {
		m, err := model.ReadTrainMetrics(opts.MetricsPath)
		if err != nil {
			return "", err
		}
		metrics = &m
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PredictionsSheet); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("create header style: %w", err)
	}
	if err := writePredictions(f, preds, header); err != nil {
		return "", fmt.Errorf("write predictions sheet: %w", err)
	}
	if err := writeSummary(f, preds, header); err != nil {
		return "", fmt.Errorf("write summary sheet: %w", err)
	}
	if metrics != nil {
		if err := writeModel(f, *metrics, header); err != nil {
			return "", fmt.Errorf("write model sheet: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutPath), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	if err := f.SaveAs(opts.OutPath); err != nil {
		return "", fmt.Errorf("save report %s: %w", opts.OutPath, err)
	}
	w.logger.Info("model report written", "path", opts.OutPath, "locations", len(preds))
	return opts.OutPath, nil
}

// writePredictions lists locations by predicted PM2.5, highest first.
func writePredictions(f *excelize.File, preds []domain.PredictionRow, header int) error {
	sorted := slices.Clone(preds)
	slices.SortStableFunc(sorted, func(a, b domain.PredictionRow) int {
		return cmp.Compare(b.PM25PredNextDay, a.PM25PredNextDay)
	})

	if err := setRow(f, PredictionsSheet, 1, []any{"Location", "Date", "PM2.5 next day", "AQI category"}); err != nil {
		return err
	}
	for i, p := range sorted {
		row := []any{p.Location, p.Date.Format(domain.DateLayout), p.PM25PredNextDay, domain.AQICategory(p.PM25PredNextDay)}
		if err := setRow(f, PredictionsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(PredictionsSheet, "A1", "D1", header); err != nil {
		return err
	}
	return f.SetColWidth(PredictionsSheet, "A", "D", 18)
}

// writeSummary counts locations per AQI category in breakpoint order.
func writeSummary(f *excelize.File, preds []domain.PredictionRow, header int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	counts := make(map[string]int)
	for _, p := range preds {
		counts[domain.AQICategory(p.PM25PredNextDay)]++
	}

	if err := setRow(f, SummarySheet, 1, []any{"AQI category", "Locations"}); err != nil {
		return err
	}
	row := 2
	for _, c := range domain.AQICategories() {
		if err := setRow(f, SummarySheet, row, []any{c, counts[c]}); err != nil {
			return err
		}
		row++
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", header); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", 32)
}

func writeModel(f *excelize.File, m model.TrainMetrics, header int) error {
	if _, err := f.NewSheet(ModelSheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"Model path", m.ModelPath},
		{"RMSE", m.RMSE},
		{"Split", m.Split},
		{"Test size", m.TestSize},
		{"Estimators", m.NEstimators},
		{"Train rows", m.TrainRows},
		{"Test rows", m.TestRows},
		{"Trained at", m.TrainedAt.Format(domain.TimestampLayout)},
	}
	for i, r := range rows {
		if err := setRow(f, ModelSheet, i+1, r); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(ModelSheet, "A1", "B1", header); err != nil {
		return err
	}
	return f.SetColWidth(ModelSheet, "A", "B", 24)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
