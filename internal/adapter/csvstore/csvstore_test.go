package csvstore_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSensorReadings_RoundTripCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "sensor_readings.csv")
	ts := time.Date(2024, 3, 1, 13, 0, 0, 0, time.Local)
	in := []domain.SensorReading{
		{Timestamp: ts, Location: "Loc_1", PM25: 31.25, PM10: 40.1, NO2: 23.5, SO2: 4.75},
	}

	require.NoError(t, csvstore.WriteSensorReadings(path, in))
	out, err := csvstore.ReadSensorReadings(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, ts.Equal(out[0].Timestamp))
	out[0].Timestamp = ts
	assert.Equal(t, in, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "timestamp,location,pm25,pm10,no2,so2\n"))
	assert.Contains(t, string(data), "2024-03-01 13:00:00,Loc_1,31.25")
}

func TestReadSensorReadings_MissingColumn(t *testing.T) {
	path := writeFile(t, "sensor.csv", "timestamp,location,pm25,pm10,no2\n2024-03-01 00:00:00,Loc_1,1,2,3\n")

	_, err := csvstore.ReadSensorReadings(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)

	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "so2", schemaErr.Column)
	assert.Equal(t, path, schemaErr.Path)
}

func TestReadSensorReadings_MalformedValue(t *testing.T) {
	path := writeFile(t, "sensor.csv",
		"timestamp,location,pm25,pm10,no2,so2\n"+
			"2024-03-01 00:00:00,Loc_1,1,2,3,4\n"+
			"2024-03-01 01:00:00,Loc_1,abc,2,3,4\n")

	_, err := csvstore.ReadSensorReadings(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedValue)

	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 3, parseErr.Line)
	assert.Equal(t, "pm25", parseErr.Column)
	assert.Equal(t, "abc", parseErr.Value)
}

func TestReadSensorReadings_MalformedTimestamp(t *testing.T) {
	path := writeFile(t, "sensor.csv",
		"timestamp,location,pm25,pm10,no2,so2\nyesterday,Loc_1,1,2,3,4\n")

	_, err := csvstore.ReadSensorReadings(path)
	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "timestamp", parseErr.Column)
}

func TestReadSensorReadings_ColumnOrderIndependent(t *testing.T) {
	path := writeFile(t, "sensor.csv",
		"location,so2,no2,pm10,pm25,timestamp\nLoc_2,4,3,2,1,2024-03-01 05:00:00\n")

	out, err := csvstore.ReadSensorReadings(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Loc_2", out[0].Location)
	assert.InDelta(t, 1.0, out[0].PM25, 1e-9)
	assert.InDelta(t, 4.0, out[0].SO2, 1e-9)
	assert.Equal(t, 5, out[0].Timestamp.Hour())
}

func TestReadSensorReadings_FileNotFound(t *testing.T) {
	_, err := csvstore.ReadSensorReadings(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWeatherReadings_EmptyCellIsMissing(t *testing.T) {
	path := writeFile(t, "weather.csv",
		"timestamp,location,temp,humidity,wind_speed,precip\n2024-03-01 00:00:00,Loc_1,,55,3.2,0\n")

	out, err := csvstore.ReadWeatherReadings(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, math.IsNaN(out[0].Temp))
	assert.InDelta(t, 55.0, out[0].Humidity, 1e-9)
}

func TestFeatureRows_RoundTripPreservesNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	row := domain.DailyFeatureRow{
		Location:      "Loc_1",
		Date:          time.Date(2024, 3, 2, 0, 0, 0, 0, time.Local),
		PM25Mean:      30,
		PM25Max:       45.5,
		PM10Mean:      36,
		NO2Mean:       23,
		SO2Mean:       5,
		TempMean:      math.NaN(),
		HumidityMean:  math.NaN(),
		WindSpeedMean: math.NaN(),
		PrecipSum:     0,
		PM25Roll3:     30,
		PM25Roll7:     30,
		PM25Trend3:    0,
	}

	require.NoError(t, csvstore.WriteFeatureRows(path, []domain.DailyFeatureRow{row}, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Loc_1,2024-03-02,30,45.5,36,23,5,,,,0,30,30,0")

	out, err := csvstore.ReadFeatureRows(path)
	require.NoError(t, err)
	if diff := cmp.Diff([]domain.DailyFeatureRow{row}, out, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("feature rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFeatureRows_HourlyKeepsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	row := domain.DailyFeatureRow{Location: "Loc_1", Date: time.Date(2024, 3, 2, 7, 0, 0, 0, time.Local)}

	require.NoError(t, csvstore.WriteFeatureRows(path, []domain.DailyFeatureRow{row}, true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Loc_1,2024-03-02 07:00:00,")
}

func TestReadFeatureRows_MissingRollingColumn(t *testing.T) {
	header := strings.Join(csvstore.FeatureColumns[:len(csvstore.FeatureColumns)-1], ",")
	path := writeFile(t, "processed.csv", header+"\n")

	_, err := csvstore.ReadFeatureRows(path)
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "pm25_trend_3", schemaErr.Column)
}

func TestPredictions_EncodeDecode(t *testing.T) {
	rows := []domain.PredictionRow{
		{Location: "Loc_1", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local), PM25PredNextDay: 40.5, AQICategory: domain.AQIUnhealthyForSensitiveGroups},
	}

	data, err := csvstore.EncodePredictions(rows)
	require.NoError(t, err)
	assert.Equal(t, "location,date,pm25_pred_next_day,aqi_category\nLoc_1,2024-03-05,40.5,Unhealthy for Sensitive Groups\n", string(data))

	out, err := csvstore.DecodePredictions(strings.NewReader(string(data)), "latest.csv")
	require.NoError(t, err)
	assert.Equal(t, rows[0].Location, out[0].Location)
	assert.Equal(t, rows[0].AQICategory, out[0].AQICategory)
	assert.True(t, rows[0].Date.Equal(out[0].Date))
}

func TestDecodePredictions_DerivesMissingCategory(t *testing.T) {
	out, err := csvstore.DecodePredictions(strings.NewReader("location,date,pm25_pred_next_day\nLoc_3,2024-03-05,8\n"), "remote")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.AQIGood, out[0].AQICategory)
}

func TestDecodePredictions_EmptyInput(t *testing.T) {
	_, err := csvstore.DecodePredictions(strings.NewReader(""), "remote")
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
}

func TestParseTime_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		hour int
	}{
		{"2024-03-01 13:00:00", 13},
		{"2024-03-01", 0},
		{"2024-03-01T09:00:00", 9},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := csvstore.ParseTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.hour, ts.Hour())
			assert.Equal(t, 2024, ts.Year())
		})
	}

	_, err := csvstore.ParseTime("03/01/2024")
	assert.Error(t, err)
}
