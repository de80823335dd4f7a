// Command genmock writes synthetic sensor and weather CSVs without running the
// rest of the pipeline. It produces the same files as the data_generator
// steps, so a fixed -seed yields reproducible fixtures.
//
// Usage:
//
//	go run ./cmd/genmock -data-dir artifacts/data -days 30 -locations 5 -seed 7
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/couchcryptid/air-quality-etl/internal/generator"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "artifacts/data", "directory for the default output files")
	days := flag.Int("days", 30, "number of days to generate")
	locations := flag.Int("locations", 5, "number of locations")
	freq := flag.String("freq", generator.FreqHourly, "sensor sampling frequency: hourly or daily")
	seed := flag.Uint64("seed", 0, "random seed; 0 seeds from the clock")
	sensorOut := flag.String("sensor-out", "", "sensor CSV path (default <data-dir>/"+generator.SensorFile+")")
	weatherOut := flag.String("weather-out", "", "weather CSV path (default <data-dir>/"+generator.WeatherFile+")")
	skipWeather := flag.Bool("skip-weather", false, "only write sensor readings")
	flag.Parse()

	if *days <= 0 || *locations <= 0 {
		flag.Usage()
		return fmt.Errorf("-days and -locations must be positive")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gen := generator.New(*dataDir, logger)

	sensorPath, err := gen.GenerateSensorReadings(generator.SensorOptions{
		Days:      *days,
		Locations: *locations,
		Freq:      *freq,
		OutPath:   *sensorOut,
		Seed:      *seed,
	})
	if err != nil {
		return fmt.Errorf("generate sensor readings: %w", err)
	}
	fmt.Println(sensorPath)

	if *skipWeather {
		return nil
	}

	// Offset the weather seed so the two tables are not correlated draws.
	weatherSeed := *seed
	if weatherSeed != 0 {
		weatherSeed++
	}
	weatherPath, err := gen.GenerateWeatherData(generator.WeatherOptions{
		Days:      *days,
		Locations: *locations,
		OutPath:   *weatherOut,
		Seed:      weatherSeed,
	})
	if err != nil {
		return fmt.Errorf("generate weather data: %w", err)
	}
	fmt.Println(weatherPath)
	return nil
}
