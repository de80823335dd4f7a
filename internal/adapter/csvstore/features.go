package csvstore

import (
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// FeatureColumns is the processed.csv header.
var FeatureColumns = append([]string{"location", "date"}, domain.FeatureNames...)

// ReadFeatureRows loads and validates an engineered feature table.
func ReadFeatureRows(path string) ([]domain.DailyFeatureRow, error) {
	t, err := readTable(path, FeatureColumns...)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DailyFeatureRow, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		date, err := t.time(row, line, "date")
		if err != nil {
			return nil, err
		}
		r := domain.DailyFeatureRow{Location: t.get(row, "location"), Date: date}
		for _, f := range featureFields(&r) {
			if *f.dst, err = t.float(row, line, f.col); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// WriteFeatureRows writes the feature table. Daily tables format dates as
// YYYY-MM-DD; hourly tables keep the full timestamp.
func WriteFeatureRows(path string, rows []domain.DailyFeatureRow, hourly bool) error {
	layout := domain.DateLayout
	if hourly {
		layout = domain.TimestampLayout
	}

	records := make([][]string, len(rows))
	for i := range rows {
		r := &rows[i]
		rec := make([]string, 0, len(FeatureColumns))
		rec = append(rec, r.Location, r.Date.Format(layout))
		for _, f := range featureFields(r) {
			rec = append(rec, formatFloat(*f.dst))
		}
		records[i] = rec
	}
	return writeTable(path, FeatureColumns, records)
}

type featureField struct {
	col string
	dst *float64
}

// featureFields binds each feature column to its struct field, in
// domain.FeatureNames order.
func featureFields(r *domain.DailyFeatureRow) []featureField {
	return []featureField{
		{"pm25_mean", &r.PM25Mean},
		{"pm25_max", &r.PM25Max},
		{"pm10_mean", &r.PM10Mean},
		{"no2_mean", &r.NO2Mean},
		{"so2_mean", &r.SO2Mean},
		{"temp_mean", &r.TempMean},
		{"humidity_mean", &r.HumidityMean},
		{"wind_speed_mean", &r.WindSpeedMean},
		{"precip_sum", &r.PrecipSum},
		{"pm25_roll3", &r.PM25Roll3},
		{"pm25_roll7", &r.PM25Roll7},
		{"pm25_trend_3", &r.PM25Trend3},
	}
}
