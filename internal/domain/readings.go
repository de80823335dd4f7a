package domain

import (
	"math"
	"time"
)

// Timestamp and date layouts used by every CSV artifact.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)

// SensorReading is one hourly (or daily) pollutant observation for a location.
type SensorReading struct {
	Timestamp time.Time
	Location  string
	PM25      float64
	PM10      float64
	NO2       float64
	SO2       float64
}

// WeatherReading is one hourly weather observation for a location.
type WeatherReading struct {
	Timestamp time.Time
	Location  string
	Temp      float64
	Humidity  float64
	WindSpeed float64
	Precip    float64
}

// DailyFeatureRow is the engineered feature set for one (location, date).
// In hourly aggregation mode Date carries the full timestamp.
type DailyFeatureRow struct {
	Location      string
	Date          time.Time
	PM25Mean      float64
	PM25Max       float64
	PM10Mean      float64
	NO2Mean       float64
	SO2Mean       float64
	TempMean      float64
	HumidityMean  float64
	WindSpeedMean float64
	PrecipSum     float64
	PM25Roll3     float64
	PM25Roll7     float64
	PM25Trend3    float64
}

// FeatureNames is the fixed, ordered model input schema.
var FeatureNames = []string{
	"pm25_mean",
	"pm25_max",
	"pm10_mean",
	"no2_mean",
	"so2_mean",
	"temp_mean",
	"humidity_mean",
	"wind_speed_mean",
	"precip_sum",
	"pm25_roll3",
	"pm25_roll7",
	"pm25_trend_3",
}

// Features returns the row's model inputs in FeatureNames order with missing
// values replaced by 0.
func (r DailyFeatureRow) Features() []float64 {
	raw := [...]float64{
		r.PM25Mean,
		r.PM25Max,
		r.PM10Mean,
		r.NO2Mean,
		r.SO2Mean,
		r.TempMean,
		r.HumidityMean,
		r.WindSpeedMean,
		r.PrecipSum,
		r.PM25Roll3,
		r.PM25Roll7,
		r.PM25Trend3,
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = ZeroIfMissing(v)
	}
	return out
}

// TrainingExample pairs a feature row with the following day's mean PM2.5.
type TrainingExample struct {
	Row         DailyFeatureRow
	PM25NextDay float64
}

// PredictionRow is the next-day forecast for one location.
type PredictionRow struct {
	Location        string    `json:"location"`
	Date            time.Time `json:"date"`
	PM25PredNextDay float64   `json:"pm25_pred_next_day"`
	AQICategory     string    `json:"aqi_category"`
}

// Missing reports whether v is the NaN sentinel for an absent value.
func Missing(v float64) bool {
	return math.IsNaN(v)
}

// ZeroIfMissing replaces the missing-value sentinel with 0.
func ZeroIfMissing(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
