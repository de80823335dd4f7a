package etl

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Rolling window sizes and trend lag over pm25_mean.
const (
	shortWindow = 3
	longWindow  = 7
	trendLag    = 3
)

// joinedReading is a sensor reading with the matching weather values, or NaN
// weather when no weather row shares its (timestamp, location).
type joinedReading struct {
	domain.SensorReading
	Temp      float64
	Humidity  float64
	WindSpeed float64
	Precip    float64
}

type joinKey struct {
	location string
	unix     int64
}

// join left-joins weather onto sensor readings by exact timestamp and
// location. The first weather row wins when the key repeats.
func join(sensors []domain.SensorReading, weather []domain.WeatherReading) []joinedReading {
	byKey := make(map[joinKey]domain.WeatherReading, len(weather))
	for _, w := range weather {
		k := joinKey{w.Location, w.Timestamp.Unix()}
		if _, ok := byKey[k]; !ok {
			byKey[k] = w
		}
	}

	out := make([]joinedReading, len(sensors))
	for i, s := range sensors {
		j := joinedReading{SensorReading: s, Temp: math.NaN(), Humidity: math.NaN(), WindSpeed: math.NaN(), Precip: math.NaN()}
		if w, ok := byKey[joinKey{s.Location, s.Timestamp.Unix()}]; ok {
			j.Temp, j.Humidity, j.WindSpeed, j.Precip = w.Temp, w.Humidity, w.WindSpeed, w.Precip
		}
		out[i] = j
	}
	return out
}

// BuildFeatures joins, aggregates and derives rolling features. The result is
// ordered by location, then date.
func BuildFeatures(sensors []domain.SensorReading, weather []domain.WeatherReading, aggFreq string) ([]domain.DailyFeatureRow, error) {
	joined := join(sensors, weather)

	var rows []domain.DailyFeatureRow
	switch aggFreq {
	case AggDaily:
		rows = aggregateDaily(joined)
	case AggHourly:
		rows = hourlyRows(joined)
	default:
		return nil, unknownAggregation(aggFreq)
	}
	return ApplyRollingFeatures(rows), nil
}

// ApplyRollingFeatures sorts rows by (location, date) and fills pm25_roll3,
// pm25_roll7 and pm25_trend_3 from preceding rows of the same location only.
// The input slice is sorted in place and returned.
func ApplyRollingFeatures(rows []domain.DailyFeatureRow) []domain.DailyFeatureRow {
	slices.SortStableFunc(rows, func(a, b domain.DailyFeatureRow) int {
		if c := cmp.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})

	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].Location != rows[start].Location {
			applyToSeries(rows[start:i])
			start = i
		}
	}
	return rows
}

func applyToSeries(series []domain.DailyFeatureRow) {
	for i := range series {
		series[i].PM25Roll3 = trailingMean(series, i, shortWindow)
		series[i].PM25Roll7 = trailingMean(series, i, longWindow)
		series[i].PM25Trend3 = 0
		if i >= trendLag {
			diff := series[i].PM25Mean - series[i-trendLag].PM25Mean
			if !math.IsNaN(diff) {
				series[i].PM25Trend3 = diff
			}
		}
	}
}

// trailingMean averages pm25_mean over rows max(0,i-window+1)..i, skipping
// missing values. NaN when the window holds no values.
func trailingMean(series []domain.DailyFeatureRow, i, window int) float64 {
	var m meanAcc
	for j := max(0, i-window+1); j <= i; j++ {
		m.add(series[j].PM25Mean)
	}
	return m.value()
}

type dayKey struct {
	location string
	date     time.Time
}

type dayAcc struct {
	pm25, pm10, no2, so2 meanAcc
	temp, humidity, wind meanAcc
	pm25Max, precipSum   float64
	hasPM25Max           bool
}

func aggregateDaily(joined []joinedReading) []domain.DailyFeatureRow {
	groups := make(map[dayKey]*dayAcc)
	var order []dayKey
	for _, r := range joined {
		y, m, d := r.Timestamp.Date()
		k := dayKey{r.Location, time.Date(y, m, d, 0, 0, 0, 0, r.Timestamp.Location())}
		acc, ok := groups[k]
		if !ok {
			acc = &dayAcc{}
			groups[k] = acc
			order = append(order, k)
		}
		acc.pm25.add(r.PM25)
		acc.pm10.add(r.PM10)
		acc.no2.add(r.NO2)
		acc.so2.add(r.SO2)
		acc.temp.add(r.Temp)
		acc.humidity.add(r.Humidity)
		acc.wind.add(r.WindSpeed)
		if !math.IsNaN(r.PM25) && (!acc.hasPM25Max || r.PM25 > acc.pm25Max) {
			acc.pm25Max = r.PM25
			acc.hasPM25Max = true
		}
		if !math.IsNaN(r.Precip) {
			acc.precipSum += r.Precip
		}
	}

	rows := make([]domain.DailyFeatureRow, 0, len(order))
	for _, k := range order {
		acc := groups[k]
		pm25Max := math.NaN()
		if acc.hasPM25Max {
			pm25Max = acc.pm25Max
		}
		rows = append(rows, domain.DailyFeatureRow{
			Location:      k.location,
			Date:          k.date,
			PM25Mean:      acc.pm25.value(),
			PM25Max:       pm25Max,
			PM10Mean:      acc.pm10.value(),
			NO2Mean:       acc.no2.value(),
			SO2Mean:       acc.so2.value(),
			TempMean:      acc.temp.value(),
			HumidityMean:  acc.humidity.value(),
			WindSpeedMean: acc.wind.value(),
			PrecipSum:     acc.precipSum,
		})
	}
	return rows
}

// hourlyRows keeps one row per joined reading; each aggregate column carries
// the single hourly value.
func hourlyRows(joined []joinedReading) []domain.DailyFeatureRow {
	rows := make([]domain.DailyFeatureRow, len(joined))
	for i, r := range joined {
		rows[i] = domain.DailyFeatureRow{
			Location:      r.Location,
			Date:          r.Timestamp,
			PM25Mean:      r.PM25,
			PM25Max:       r.PM25,
			PM10Mean:      r.PM10,
			NO2Mean:       r.NO2,
			SO2Mean:       r.SO2,
			TempMean:      r.Temp,
			HumidityMean:  r.Humidity,
			WindSpeedMean: r.WindSpeed,
			PrecipSum:     r.Precip,
		}
	}
	return rows
}

// meanAcc is a NaN-skipping running mean.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

func (m meanAcc) value() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}
