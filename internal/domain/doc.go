// Package domain models the air-quality forecasting data contract.
//
// # Artifacts
//
// Every stage of the pipeline communicates through CSV files on local disk:
//
//	sensor_readings.csv  timestamp,location,pm25,pm10,no2,so2
//	weather.csv          timestamp,location,temp,humidity,wind_speed,precip
//	processed.csv        one DailyFeatureRow per (location, date)
//	prediction_*.csv     location,date,pm25_pred_next_day,aqi_category
//
// Timestamps use the layout "2006-01-02 15:04:05" and daily dates "2006-01-02".
//
// # Missing values
//
// Weather fields can be absent after the sensor/weather left join. Missing
// numeric values are carried as NaN in memory and written as empty CSV cells.
// Aggregations skip NaN; the model replaces NaN features with 0.
//
// # Ordering
//
// Within one location feature rows are strictly ordered by date. Rolling and
// trend features are computed over that order only, never across locations.
//
// # AQI
//
// PM2.5 concentrations (µg/m³) map to six US EPA category labels:
//
//	[0, 12]         Good
//	(12, 35.4]      Moderate
//	(35.4, 55.4]    Unhealthy for Sensitive Groups
//	(55.4, 150.4]   Unhealthy
//	(150.4, 250.4]  Very Unhealthy
//	(250.4, 500]    Hazardous
//
// Anything outside [0, 500] (or NaN) is "Unknown". See [AQICategory].
package domain
