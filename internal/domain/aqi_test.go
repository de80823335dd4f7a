package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAQICategory(t *testing.T) {
	tests := []struct {
		name     string
		pm25     float64
		expected string
	}{
		{"zero", 0, AQIGood},
		{"good upper bound", 12, AQIGood},
		{"just above good", 12.1, AQIModerate},
		{"between buckets", 12.05, AQIModerate},
		{"moderate upper bound", 35.4, AQIModerate},
		{"sensitive groups", 35.5, AQIUnhealthyForSensitiveGroups},
		{"sensitive upper bound", 55.4, AQIUnhealthyForSensitiveGroups},
		{"unhealthy", 100, AQIUnhealthy},
		{"unhealthy upper bound", 150.4, AQIUnhealthy},
		{"very unhealthy", 200, AQIVeryUnhealthy},
		{"very unhealthy upper bound", 250.4, AQIVeryUnhealthy},
		{"hazardous", 300, AQIHazardous},
		{"hazardous upper bound", 500, AQIHazardous},
		{"above range", 600, AQIUnknown},
		{"negative", -1, AQIUnknown},
		{"missing", math.NaN(), AQIUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AQICategory(tt.pm25))
		})
	}
}

func TestNeedsAttention(t *testing.T) {
	assert.False(t, NeedsAttention(AQIGood))
	assert.False(t, NeedsAttention(AQIModerate))
	assert.False(t, NeedsAttention(AQIUnknown))
	assert.True(t, NeedsAttention(AQIUnhealthyForSensitiveGroups))
	assert.True(t, NeedsAttention(AQIUnhealthy))
	assert.True(t, NeedsAttention(AQIVeryUnhealthy))
	assert.True(t, NeedsAttention(AQIHazardous))
}

func TestDailyFeatureRow_Features(t *testing.T) {
	row := DailyFeatureRow{
		PM25Mean:      30,
		PM25Max:       45,
		PM10Mean:      36,
		NO2Mean:       23,
		SO2Mean:       5,
		TempMean:      math.NaN(),
		HumidityMean:  math.NaN(),
		WindSpeedMean: 3,
		PrecipSum:     0.2,
		PM25Roll3:     29,
		PM25Roll7:     28,
		PM25Trend3:    -1.5,
	}

	got := row.Features()

	assert.Len(t, got, len(FeatureNames))
	assert.Equal(t, []float64{30, 45, 36, 23, 5, 0, 0, 3, 0.2, 29, 28, -1.5}, got)
}
