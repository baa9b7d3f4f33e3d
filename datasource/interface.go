package datasource

import (
	"context"

	"airquality-service/models"
)

// StationFeed returns the current AQI observation for one station or city identifier
type StationFeed interface {
	Name() string
	// FetchStation returns ErrNoReading when the identifier has no usable data
	FetchStation(ctx context.Context, id string) (models.Observation, error)
}

// CityAQISource looks up the current US AQI for a named city
type CityAQISource interface {
	Name() string
	CityAQI(ctx context.Context, city, state, country string) (models.CityAQI, error)
}

// Geocoder resolves a free-text location into coordinates
type Geocoder interface {
	Geocode(ctx context.Context, city, state, country string) (models.Coordinates, error)
}

// WeatherSource provides current weather, forecasts and pollution history by coordinates
type WeatherSource interface {
	Name() string
	CurrentWeather(ctx context.Context, city, country string) (models.WeatherData, error)
	WeatherForecast(ctx context.Context, lat, lon float64) ([]models.DailyWeather, error)
	AQIForecast(ctx context.Context, lat, lon float64) (map[string]int, error)
	PM25History(ctx context.Context, lat, lon float64, days int) ([]models.HistoryPoint, error)
}

// StationMap lists monitoring stations inside a bounding box
type StationMap interface {
	MapStations(ctx context.Context, b Bounds) ([]models.Observation, error)
	NearbyStations(ctx context.Context, lat, lon, radiusDeg float64, limit int) ([]models.Observation, error)
}
