package domain

import "math"

// AQI category labels.
const (
	AQIGood                        = "Good"
	AQIModerate                    = "Moderate"
	AQIUnhealthyForSensitiveGroups = "Unhealthy for Sensitive Groups"
	AQIUnhealthy                   = "Unhealthy"
	AQIVeryUnhealthy               = "Very Unhealthy"
	AQIHazardous                   = "Hazardous"
	AQIUnknown                     = "Unknown"
)

type aqiBreakpoint struct {
	upper float64
	label string
}

// aqiBreakpoints are inclusive upper bounds; the lower bound of each bucket is
// the previous upper bound (exclusive), and 0 (inclusive) for the first.
var aqiBreakpoints = []aqiBreakpoint{
	{12, AQIGood},
	{35.4, AQIModerate},
	{55.4, AQIUnhealthyForSensitiveGroups},
	{150.4, AQIUnhealthy},
	{250.4, AQIVeryUnhealthy},
	{500, AQIHazardous},
}

// AQICategory maps a PM2.5 concentration to its category label.
func AQICategory(pm25 float64) string {
	if math.IsNaN(pm25) || pm25 < 0 {
		return AQIUnknown
	}
	for _, bp := range aqiBreakpoints {
		if pm25 <= bp.upper {
			return bp.label
		}
	}
	return AQIUnknown
}

// NeedsAttention reports whether a category is Unhealthy for Sensitive Groups or worse.
func NeedsAttention(category string) bool {
	switch category {
	case AQIUnhealthyForSensitiveGroups, AQIUnhealthy, AQIVeryUnhealthy, AQIHazardous:
		return true
	default:
		return false
	}
}

// AQICategories lists the category labels in breakpoint order, followed by
// AQIUnknown.
func AQICategories() []string {
	out := make([]string, 0, len(aqiBreakpoints)+1)
	for _, b := range aqiBreakpoints {
		out = append(out, b.label)
	}
	return append(out, AQIUnknown)
}
