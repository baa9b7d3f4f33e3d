package models

import (
	"time"
)

// Source identifies the upstream API a reading came from
type Source string

const (
	SourceIQAir Source = "IQAIR"
	SourceWAQI  Source = "WAQI"
	SourceOWM   Source = "OWM"
)

// Scale identifies how a raw value must be interpreted. The two scales are
// never converted into each other.
type Scale string

const (
	// ScaleUSAQI is the continuous 0-500 US EPA index (IQAir and WAQI)
	ScaleUSAQI Scale = "US_AQI"
	// ScaleOWMIndex is OpenWeatherMap's pre-categorised 1-5 index
	ScaleOWMIndex Scale = "OWM_INDEX"
)

// Observation is what a provider fetch extracts from its JSON response
// before any classification happens.
type Observation struct {
	Source   Source    `json:"source"`
	Location string    `json:"location"`
	Value    float64   `json:"value"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	URL      string    `json:"url,omitempty"`
	Observed time.Time `json:"observed"`
}

// HealthNote is the canned recommendation text for a category
type HealthNote struct {
	Short   string `json:"short"`
	Details string `json:"details"`
}

// AirQualityReading is one classified observation
type AirQualityReading struct {
	Source        Source     `json:"source"`
	Scale         Scale      `json:"scale"`
	LocationLabel string     `json:"location"`
	RawValue      *float64   `json:"rawValue"` // nil when the value was missing or unparsable
	CategoryLabel string     `json:"category"`
	CategoryColor string     `json:"color"`
	HealthNote    HealthNote `json:"healthNote"`
	Lat           *float64   `json:"lat,omitempty"`
	Lon           *float64   `json:"lon,omitempty"`
	Observed      time.Time  `json:"observed"`
}

// Value returns the raw value, or -1 when there is none
func (r AirQualityReading) Value() float64 {
	if r.RawValue == nil {
		return -1
	}
	return *r.RawValue
}
