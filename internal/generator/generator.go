// Package generator produces synthetic sensor and weather readings so the rest
// of the pipeline can run without a real data source.
package generator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// Sampling frequencies accepted by GenerateSensorReadings.
const (
	FreqHourly = "hourly"
	FreqDaily  = "daily"
)

// Default artifact names under the data directory.
const (
	SensorFile  = "sensor_readings.csv"
	WeatherFile = "weather.csv"
)

var (
	// ErrInvalidOptions means days or locations is not positive.
	ErrInvalidOptions = errors.New("days and locations must be positive")
	// ErrUnknownFrequency means the sampling frequency is neither hourly nor daily.
	ErrUnknownFrequency = errors.New("unknown frequency")
)

// SensorOptions configures a sensor readings run.
type SensorOptions struct {
	Days      int
	Locations int
	Freq      string
	OutPath   string
	Seed      uint64
}

// WeatherOptions configures a weather run. Weather is always hourly.
type WeatherOptions struct {
	Days      int
	Locations int
	OutPath   string
	Seed      uint64
}

// Generator writes synthetic readings under a data directory.
type Generator struct {
	dataDir string
	logger  *slog.Logger
}

// New creates a Generator whose default outputs live in dataDir.
func New(dataDir string, logger *slog.Logger) *Generator {
	return &Generator{dataDir: dataDir, logger: logger}
}

// GenerateSensorReadings writes one reading per location per timestamp and
// returns the output path.
func (g *Generator) GenerateSensorReadings(opts SensorOptions) (string, error) {
	readings, err := SensorReadings(opts.Days, opts.Locations, opts.Freq, newRand(opts.Seed))
	if err != nil {
		return "", err
	}

	out := g.outPath(opts.OutPath, SensorFile)
	if err := csvstore.WriteSensorReadings(out, readings); err != nil {
		return "", fmt.Errorf("write sensor readings: %w", err)
	}
	g.logger.Info("generated sensor readings", "path", out, "rows", len(readings), "freq", opts.Freq)
	return out, nil
}

// GenerateWeatherData writes hourly weather for every location and returns
// the output path.
func (g *Generator) GenerateWeatherData(opts WeatherOptions) (string, error) {
	readings, err := WeatherReadings(opts.Days, opts.Locations, newRand(opts.Seed))
	if err != nil {
		return "", err
	}

	out := g.outPath(opts.OutPath, WeatherFile)
	if err := csvstore.WriteWeatherReadings(out, readings); err != nil {
		return "", fmt.Errorf("write weather data: %w", err)
	}
	g.logger.Info("generated weather data", "path", out, "rows", len(readings))
	return out, nil
}

func (g *Generator) outPath(path, name string) string {
	if path == "" {
		return filepath.Join(g.dataDir, name)
	}
	return domain.RenderPath(path)
}

// SensorReadings simulates pollutant readings ordered by location then time.
// Each location has its own base PM2.5 level with a diurnal cycle on top.
func SensorReadings(days, locations int, freq string, rng *rand.Rand) ([]domain.SensorReading, error) {
	stamps, err := timestamps(days, locations, freq)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SensorReading, 0, len(stamps)*locations)
	for _, loc := range locationNames(locations) {
		base := 20 + rng.Float64()*50
		for _, ts := range stamps {
			pm25 := math.Max(0, base+diurnal(ts, 10)+normal(rng, 0, 5))
			pm10 := math.Max(0, pm25*(1.2+normal(rng, 0, 0.05)))
			no2 := math.Max(0, 20+normal(rng, 0, 5)+pm25/10)
			so2 := math.Max(0, 5+normal(rng, 0, 2))
			out = append(out, domain.SensorReading{
				Timestamp: ts,
				Location:  loc,
				PM25:      round(pm25, 2),
				PM10:      round(pm10, 2),
				NO2:       round(no2, 2),
				SO2:       round(so2, 2),
			})
		}
	}
	return out, nil
}

// WeatherReadings simulates hourly weather ordered by location then time.
func WeatherReadings(days, locations int, rng *rand.Rand) ([]domain.WeatherReading, error) {
	stamps, err := timestamps(days, locations, FreqHourly)
	if err != nil {
		return nil, err
	}

	out := make([]domain.WeatherReading, 0, len(stamps)*locations)
	for _, loc := range locationNames(locations) {
		for _, ts := range stamps {
			annual := 10 * math.Sin(float64(ts.YearDay())/365*2*math.Pi)
			temp := 15 + annual + normal(rng, 0, 2)
			humidity := clamp(40+diurnal(ts, 20)+normal(rng, 0, 5), 5, 100)
			// Folded normal keeps the draw non-negative without a spike at zero.
			wind := math.Abs(normal(rng, 3, 1.5))
			precip := math.Max(0, rng.ExpFloat64()*0.1-0.05)
			out = append(out, domain.WeatherReading{
				Timestamp: ts,
				Location:  loc,
				Temp:      round(temp, 2),
				Humidity:  round(humidity, 1),
				WindSpeed: round(wind, 2),
				Precip:    round(precip, 3),
			})
		}
	}
	return out, nil
}

// timestamps covers days calendar days ending today, starting at midnight in
// the clock's zone, so exactly days distinct dates are produced. Wall-clock
// hours skipped by a DST change are left out, keeping every timestamp unique.
func timestamps(days, locations int, freq string) ([]time.Time, error) {
	if days < 1 || locations < 1 {
		return nil, fmt.Errorf("%w: days=%d locations=%d", ErrInvalidOptions, days, locations)
	}

	now := domain.Clock().Now()
	loc := now.Location()
	y, m, d := now.Date()
	first := d - (days - 1)

	switch freq {
	case FreqHourly, "":
		out := make([]time.Time, 0, days*24)
		for day := range days {
			for hour := range 24 {
				ts := time.Date(y, m, first+day, hour, 0, 0, 0, loc)
				if ts.Hour() != hour {
					continue
				}
				out = append(out, ts)
			}
		}
		return out, nil
	case FreqDaily:
		out := make([]time.Time, 0, days)
		for day := range days {
			out = append(out, time.Date(y, m, first+day, 0, 0, 0, 0, loc))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
	}
}

func locationNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Loc_%d", i+1)
	}
	return names
}

// newRand returns a PCG source. Seed 0 seeds from the clock.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(domain.Clock().Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func diurnal(ts time.Time, amplitude float64) float64 {
	return amplitude * math.Sin(float64(ts.Hour())/24*2*math.Pi)
}

func normal(rng *rand.Rand, mean, stddev float64) float64 {
	return mean + rng.NormFloat64()*stddev
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
