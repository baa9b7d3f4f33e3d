package models

import (
	"time"
)

// WeatherData represents current weather conditions for a location
type WeatherData struct {
	Provider    string    `json:"provider"`
	Location    string    `json:"location"`
	Country     string    `json:"country,omitempty"`
	Temperature *float64  `json:"temperature"` // in Celsius
	FeelsLike   *float64  `json:"feelsLike"`
	Humidity    *float64  `json:"humidity"`  // percentage
	Pressure    *float64  `json:"pressure"`  // in hPa
	WindSpeed   *float64  `json:"windSpeed"` // in m/s
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Timestamp   time.Time `json:"timestamp"`
}

// Coordinates is a geocoded location
type Coordinates struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Name    string  `json:"name"`
	Country string  `json:"country"`
}
