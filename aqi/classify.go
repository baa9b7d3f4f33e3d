package aqi

import (
	"airquality-service/models"
)

// Classify turns a US AQI value from source into a reading. A value that
// cannot be read as a number yields an Unknown reading with no RawValue.
func Classify(source models.Source, location string, value any) models.AirQualityReading {
	r := models.AirQualityReading{
		Source:        source,
		Scale:         models.ScaleUSAQI,
		LocationLabel: location,
	}
	cat := Resolve(value)
	r.CategoryLabel = cat.Label
	r.CategoryColor = cat.Color
	r.HealthNote = Recommendation(cat.Label)
	if cat != Unknown {
		f, _ := ParseValue(value)
		r.RawValue = &f
	}
	return r
}

// ClassifyObservation classifies a fetched observation on the US AQI scale
func ClassifyObservation(obs models.Observation) models.AirQualityReading {
	r := Classify(obs.Source, obs.Location, obs.Value)
	r.Lat = obs.Lat
	r.Lon = obs.Lon
	r.Observed = obs.Observed
	return r
}

// ClassifyOWM turns an OpenWeatherMap index into a reading. OWM labels have no
// display colors or health notes of their own, so those stay neutral.
func ClassifyOWM(location string, index any) models.AirQualityReading {
	r := models.AirQualityReading{
		Source:        models.SourceOWM,
		Scale:         models.ScaleOWMIndex,
		LocationLabel: location,
		CategoryLabel: ResolveOWM(index),
		CategoryColor: NeutralColor,
		HealthNote:    Recommendation(UnknownLabel),
	}
	if r.CategoryLabel != UnknownLabel {
		f, _ := ParseValue(index)
		r.RawValue = &f
	}
	return r
}
