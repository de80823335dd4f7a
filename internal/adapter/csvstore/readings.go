package csvstore

import (
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// SensorColumns is the sensor_readings.csv header.
var SensorColumns = []string{"timestamp", "location", "pm25", "pm10", "no2", "so2"}

// WeatherColumns is the weather.csv header.
var WeatherColumns = []string{"timestamp", "location", "temp", "humidity", "wind_speed", "precip"}

// ReadSensorReadings loads and validates a sensor readings file.
func ReadSensorReadings(path string) ([]domain.SensorReading, error) {
	t, err := readTable(path, SensorColumns...)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SensorReading, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		ts, err := t.time(row, line, "timestamp")
		if err != nil {
			return nil, err
		}
		r := domain.SensorReading{Timestamp: ts, Location: t.get(row, "location")}
		fields := []struct {
			col string
			dst *float64
		}{
			{"pm25", &r.PM25},
			{"pm10", &r.PM10},
			{"no2", &r.NO2},
			{"so2", &r.SO2},
		}
		for _, f := range fields {
			if *f.dst, err = t.float(row, line, f.col); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// WriteSensorReadings writes readings to path, creating parent directories.
func WriteSensorReadings(path string, readings []domain.SensorReading) error {
	rows := make([][]string, len(readings))
	for i, r := range readings {
		rows[i] = []string{
			r.Timestamp.Format(domain.TimestampLayout),
			r.Location,
			formatFloat(r.PM25),
			formatFloat(r.PM10),
			formatFloat(r.NO2),
			formatFloat(r.SO2),
		}
	}
	return writeTable(path, SensorColumns, rows)
}

// ReadWeatherReadings loads and validates a weather file.
func ReadWeatherReadings(path string) ([]domain.WeatherReading, error) {
	t, err := readTable(path, WeatherColumns...)
	if err != nil {
		return nil, err
	}

	out := make([]domain.WeatherReading, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		ts, err := t.time(row, line, "timestamp")
		if err != nil {
			return nil, err
		}
		w := domain.WeatherReading{Timestamp: ts, Location: t.get(row, "location")}
		fields := []struct {
			col string
			dst *float64
		}{
			{"temp", &w.Temp},
			{"humidity", &w.Humidity},
			{"wind_speed", &w.WindSpeed},
			{"precip", &w.Precip},
		}
		for _, f := range fields {
			if *f.dst, err = t.float(row, line, f.col); err != nil {
				return nil, err
			}
		}
		out = append(out, w)
	}
	return out, nil
}

// WriteWeatherReadings writes readings to path, creating parent directories.
func WriteWeatherReadings(path string, readings []domain.WeatherReading) error {
	rows := make([][]string, len(readings))
	for i, w := range readings {
		rows[i] = []string{
			w.Timestamp.Format(domain.TimestampLayout),
			w.Location,
			formatFloat(w.Temp),
			formatFloat(w.Humidity),
			formatFloat(w.WindSpeed),
			formatFloat(w.Precip),
		}
	}
	return writeTable(path, WeatherColumns, rows)
}
