package report_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/report"
)

const metricsJSON = `{
  "model_path": "artifacts/models/aqi_model.json",
  "rmse": 4.25,
  "split": "time",
  "test_size": 0.2,
  "n_estimators": 100,
  "train_rows": 116,
  "test_rows": 29,
  "features": ["pm25_mean"],
  "trained_at": "2024-02-20T02:00:00Z"
}`

func writeInputs(t *testing.T, dir string) (string, string) {
	t.Helper()
	date := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.Local)
	predPath := filepath.Join(dir, "predictions", "latest.csv")
	require.NoError(t, csvstore.WritePredictions(predPath, []domain.PredictionRow{
		{Location: "Loc_1", Date: date, PM25PredNextDay: 10, AQICategory: domain.AQIGood},
		{Location: "Loc_2", Date: date, PM25PredNextDay: 60, AQICategory: domain.AQIUnhealthy},
		{Location: "Loc_3", Date: date, PM25PredNextDay: 30, AQICategory: domain.AQIModerate},
	}))
	metricsPath := filepath.Join(dir, "reports", "model_metrics.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(metricsPath), 0o755))
	require.NoError(t, os.WriteFile(metricsPath, []byte(metricsJSON), 0o644))
	return predPath, metricsPath
}

func TestWriteModelReport(t *testing.T) {
	dir := t.TempDir()
	predPath, metricsPath := writeInputs(t, dir)
	w := report.New(report.Options{OutPath: filepath.Join(dir, "reports", "model_report.xlsx")}, slog.Default())

	out, err := w.WriteModelReport(context.Background(), report.Options{PredictionPath: predPath, MetricsPath: metricsPath})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "model_report.xlsx"), out)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.PredictionsSheet, report.SummarySheet, report.ModelSheet}, f.GetSheetList())

	rows, err := f.GetRows(report.PredictionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Location", "Date", "PM2.5 next day", "AQI category"}, rows[0])
	assert.Equal(t, "Loc_2", rows[1][0])
	assert.Equal(t, domain.AQIUnhealthy, rows[1][3])
	assert.Equal(t, "Loc_1", rows[3][0])

	summary, err := f.GetRows(report.SummarySheet)
	require.NoError(t, err)
	counts := map[string]string{}
	for _, r := range summary[1:] {
		counts[r[0]] = r[1]
	}
	assert.Equal(t, "1", counts[domain.AQIGood])
	assert.Equal(t, "1", counts[domain.AQIModerate])
	assert.Equal(t, "1", counts[domain.AQIUnhealthy])
	assert.Equal(t, "0", counts[domain.AQIHazardous])

	rmse, err := f.GetCellValue(report.ModelSheet, "B3")
	require.NoError(t, err)
	v, err := strconv.ParseFloat(rmse, 64)
	require.NoError(t, err)
	assert.InDelta(t, 4.25, v, 1e-9)
}

func TestWriteModelReport_WithoutMetrics(t *testing.T) {
	dir := t.TempDir()
	predPath, _ := writeInputs(t, dir)
	out := filepath.Join(dir, "r.xlsx")

	_, err := report.New(report.Options{}, slog.Default()).WriteModelReport(context.Background(), report.Options{PredictionPath: predPath, OutPath: out})
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{report.PredictionsSheet, report.SummarySheet}, f.GetSheetList())
}

func TestWriteModelReport_MissingPredictions(t *testing.T) {
	dir := t.TempDir()
	_, err := report.New(report.Options{}, slog.Default()).WriteModelReport(context.Background(), report.Options{
		PredictionPath: filepath.Join(dir, "absent.csv"),
		OutPath:        filepath.Join(dir, "r.xlsx"),
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
