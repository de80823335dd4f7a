package csvstore

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// PredictionColumns is the prediction file header.
var PredictionColumns = []string{"location", "date", "pm25_pred_next_day", "aqi_category"}

// ReadPredictions loads a prediction file from disk.
func ReadPredictions(path string) ([]domain.PredictionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return DecodePredictions(f, path)
}

// DecodePredictions parses prediction CSV content. name labels errors.
// The aqi_category column is optional; when absent it is derived.
func DecodePredictions(r io.Reader, name string) ([]domain.PredictionRow, error) {
	t, err := parseTable(r, name, "location", "date", "pm25_pred_next_day")
	if err != nil {
		return nil, err
	}

	out := make([]domain.PredictionRow, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		date, err := t.time(row, line, "date")
		if err != nil {
			return nil, err
		}
		pred, err := t.float(row, line, "pm25_pred_next_day")
		if err != nil {
			return nil, err
		}
		category := t.get(row, "aqi_category")
		if category == "" {
			category = domain.AQICategory(pred)
		}
		out = append(out, domain.PredictionRow{
			Location:        t.get(row, "location"),
			Date:            date,
			PM25PredNextDay: pred,
			AQICategory:     category,
		})
	}
	return out, nil
}

// WritePredictions writes prediction rows to path, creating parent directories.
func WritePredictions(path string, rows []domain.PredictionRow) error {
	return writeTable(path, PredictionColumns, predictionRecords(rows))
}

// EncodePredictions renders prediction rows as CSV bytes.
func EncodePredictions(rows []domain.PredictionRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTable(&buf, PredictionColumns, predictionRecords(rows)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func predictionRecords(rows []domain.PredictionRow) [][]string {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{
			r.Location,
			r.Date.Format(domain.DateLayout),
			formatFloat(r.PM25PredNextDay),
			r.AQICategory,
		}
	}
	return records
}
