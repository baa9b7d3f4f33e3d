package models

import (
	"time"
)

// DailyWeather summarises one day of the 3-hourly weather forecast
type DailyWeather struct {
	Date        time.Time `json:"date"`
	MaxTemp     *float64  `json:"maxTemp"` // in Celsius
	MinTemp     *float64  `json:"minTemp"` // in Celsius
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
}

// ForecastDay joins a day's weather summary with that day's worst OWM air pollution index
type ForecastDay struct {
	DailyWeather
	MaxIndex *int   `json:"maxIndex"`
	Category string `json:"category"` // OWM label, "N/A" when no index was forecast
}

// HistoryPoint is one hourly PM2.5 sample
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	PM25      float64   `json:"pm25"` // in µg/m³
}
