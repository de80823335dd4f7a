// Package parquetfile exports the feature table as a Snappy-compressed
// Parquet file for downstream analytics tools.
package parquetfile

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// featureRecord is the Parquet schema of one feature row. Missing values are
// written as nulls.
type featureRecord struct {
	Location      string   `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date          int64    `parquet:"name=date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	PM25Mean      *float64 `parquet:"name=pm25_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM25Max       *float64 `parquet:"name=pm25_max, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM10Mean      *float64 `parquet:"name=pm10_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	NO2Mean       *float64 `parquet:"name=no2_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	SO2Mean       *float64 `parquet:"name=so2_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	TempMean      *float64 `parquet:"name=temp_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	HumidityMean  *float64 `parquet:"name=humidity_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindSpeedMean *float64 `parquet:"name=wind_speed_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	PrecipSum     *float64 `parquet:"name=precip_sum, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM25Roll3     *float64 `parquet:"name=pm25_roll3, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM25Roll7     *float64 `parquet:"name=pm25_roll7, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM25Trend3    *float64 `parquet:"name=pm25_trend_3, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func toRecord(r domain.DailyFeatureRow) featureRecord {
	return featureRecord{
		Location:      r.Location,
		Date:          r.Date.UnixMilli(),
		PM25Mean:      optional(r.PM25Mean),
		PM25Max:       optional(r.PM25Max),
		PM10Mean:      optional(r.PM10Mean),
		NO2Mean:       optional(r.NO2Mean),
		SO2Mean:       optional(r.SO2Mean),
		TempMean:      optional(r.TempMean),
		HumidityMean:  optional(r.HumidityMean),
		WindSpeedMean: optional(r.WindSpeedMean),
		PrecipSum:     optional(r.PrecipSum),
		PM25Roll3:     optional(r.PM25Roll3),
		PM25Roll7:     optional(r.PM25Roll7),
		PM25Trend3:    optional(r.PM25Trend3),
	}
}

// WriteFeatureRows writes rows to path as a single row group, replacing any
// existing file.
func WriteFeatureRows(path string, rows []domain.DailyFeatureRow) (err error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(featureRecord), 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		if err := pw.Write(toRecord(r)); err != nil {
			return fmt.Errorf("write parquet row: %w", err)
		}
	}

	// WriteStop can panic on schema problems inside the library.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("finalize parquet %s: %v", path, r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
