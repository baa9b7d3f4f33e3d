package models

import (
	"time"
)

// CityAQI is IQAir's current pollution reading for a city
type CityAQI struct {
	City          string    `json:"city"`
	State         string    `json:"state"`
	Country       string    `json:"country"`
	AQIUS         *float64  `json:"aqiUs"`
	MainPollutant string    `json:"mainPollutant"`
	Timestamp     time.Time `json:"timestamp"`
}

// Section wraps one independently fetched part of a location report
type Section[T any] struct {
	Data  T      `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// LocationReport is everything the dashboard shows for one searched location
type LocationReport struct {
	City        string                       `json:"city"`
	State       string                       `json:"state"`
	Country     string                       `json:"country"`
	Coordinates Section[*Coordinates]        `json:"coordinates"`
	AQI         Section[*AirQualityReading]  `json:"aqi"`
	Pollutant   string                       `json:"mainPollutant,omitempty"`
	Weather     Section[*WeatherData]        `json:"weather"`
	History     Section[[]HistoryPoint]      `json:"history"`
	Nearby      Section[[]AirQualityReading] `json:"nearby"`
	Forecast    Section[[]ForecastDay]       `json:"forecast"`
	Map         Section[[]AirQualityReading] `json:"map"`
	Note        string                       `json:"note"`
	GeneratedAt time.Time                    `json:"generatedAt"`
}
