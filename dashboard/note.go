package dashboard

import (
	"strings"

	"airquality-service/models"
)

const (
	windHigh     = 5.0 // m/s
	windLow      = 1.5 // m/s
	humidityHigh = 75  // %
	maxNotes     = 2

	defaultNote = "General weather conditions observed."
	noteSuffix  = ". *Note: General observations.*"
)

// AnalyticalNote summarizes how current weather may be affecting air quality.
// Either argument may be nil.
func AnalyticalNote(reading *models.AirQualityReading, weather *models.WeatherData) string {
	var notes []string

	if weather != nil {
		if ws := weather.WindSpeed; ws != nil {
			if *ws > windHigh {
				notes = append(notes, "Strong winds may help disperse pollutants.")
			} else if *ws < windLow {
				notes = append(notes, "Light winds might lead to pollutant accumulation.")
			}
		}
		desc := strings.ToLower(weather.Description)
		if strings.Contains(desc, "rain") || strings.Contains(desc, "drizzle") || strings.Contains(desc, "shower") {
			notes = append(notes, "Precipitation can help wash pollutants from the air.")
		}
		if h := weather.Humidity; h != nil && *h > humidityHigh {
			notes = append(notes, "High humidity can sometimes contribute to haze.")
		}
	}

	if reading != nil && reading.RawValue != nil {
		if v := *reading.RawValue; v > 150 {
			notes = append(notes, "Current AQI levels are high, consider health recommendations.")
		} else if v < 50 {
			notes = append(notes, "Air quality appears good.")
		}
	}

	if len(notes) == 0 {
		return defaultNote
	}
	if len(notes) > maxNotes {
		notes = notes[:maxNotes]
	}
	return strings.TrimSuffix(strings.Join(notes, " | "), ".") + noteSuffix
}
