// Package dashboard assembles the per-location air quality report.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"airquality-service/aqi"
	"airquality-service/datasource"
	"airquality-service/models"
)

const (
	historyDays  = 7
	nearbyRadius = 1.5 // degrees
	nearbyLimit  = 10
	mapSpan      = 10.0 // degrees around the location
	notAvailable = "N/A"
)

// ErrInvalidQuery is returned when a report is requested without a city or country
var ErrInvalidQuery = errors.New("city and country are required")

// Query names the location to report on
type Query struct {
	City    string
	State   string
	Country string
}

func (q Query) normalize() (Query, error) {
	q.City = strings.TrimSpace(q.City)
	q.State = strings.TrimSpace(q.State)
	q.Country = strings.TrimSpace(q.Country)
	if q.City == "" || q.Country == "" {
		return q, ErrInvalidQuery
	}
	return q, nil
}

// Sources are the providers a report draws on
type Sources struct {
	Geocoder datasource.Geocoder
	CityAQI  datasource.CityAQISource
	Weather  datasource.WeatherSource
	Stations datasource.StationMap
}

// Service builds location reports
type Service struct {
	src    Sources
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a dashboard service
func NewService(src Sources, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{src: src, logger: logger.With("component", "dashboard"), now: time.Now}
}

// Report fetches every section for q. Sections fail independently and carry
// their own error; only an invalid query fails the call.
func (s *Service) Report(ctx context.Context, q Query) (models.LocationReport, error) {
	q, err := q.normalize()
	if err != nil {
		return models.LocationReport{}, err
	}

	report := models.LocationReport{City: q.City, State: q.State, Country: q.Country}

	coords, geoErr := s.src.Geocoder.Geocode(ctx, q.City, q.State, q.Country)
	if geoErr != nil {
		report.Coordinates.Error = geoErr.Error()
	} else {
		report.Coordinates.Data = &coords
	}

	// each section writes only its own field
	var g errgroup.Group
	g.Go(func() error {
		report.AQI, report.Pollutant = s.aqiSection(ctx, q)
		return nil
	})
	g.Go(func() error {
		report.Weather = s.weatherSection(ctx, q)
		return nil
	})
	if geoErr != nil {
		locErr := fmt.Sprintf("Location unavailable: %v", geoErr)
		report.History.Error = locErr
		report.Nearby.Error = locErr
		report.Forecast.Error = locErr
		report.Map.Error = locErr
	} else {
		g.Go(func() error {
			report.History = s.historySection(ctx, coords)
			return nil
		})
		g.Go(func() error {
			report.Nearby = s.nearbySection(ctx, coords)
			return nil
		})
		g.Go(func() error {
			report.Forecast = s.forecastSection(ctx, coords)
			return nil
		})
		g.Go(func() error {
			report.Map = s.mapSection(ctx, coords)
			return nil
		})
	}
	_ = g.Wait()

	report.Note = AnalyticalNote(report.AQI.Data, report.Weather.Data)
	report.GeneratedAt = s.now()

	s.logger.Info("report built",
		"city", q.City,
		"country", q.Country,
		"aqi_error", report.AQI.Error,
		"weather_error", report.Weather.Error,
	)
	return report, nil
}

func (s *Service) aqiSection(ctx context.Context, q Query) (models.Section[*models.AirQualityReading], string) {
	data, err := s.src.CityAQI.CityAQI(ctx, q.City, q.State, q.Country)
	if err != nil {
		return models.Section[*models.AirQualityReading]{Error: err.Error()}, ""
	}
	label := fmt.Sprintf("%s, %s", data.City, data.Country)
	reading := aqi.Classify(models.SourceIQAir, label, data.AQIUS)
	if !data.Timestamp.IsZero() {
		reading.Observed = data.Timestamp
	}
	return models.Section[*models.AirQualityReading]{Data: &reading}, data.MainPollutant
}

func (s *Service) weatherSection(ctx context.Context, q Query) models.Section[*models.WeatherData] {
	data, err := s.src.Weather.CurrentWeather(ctx, q.City, q.Country)
	if err != nil {
		return models.Section[*models.WeatherData]{Error: err.Error()}
	}
	return models.Section[*models.WeatherData]{Data: &data}
}

func (s *Service) historySection(ctx context.Context, c models.Coordinates) models.Section[[]models.HistoryPoint] {
	data, err := s.src.Weather.PM25History(ctx, c.Lat, c.Lon, historyDays)
	if err != nil {
		return models.Section[[]models.HistoryPoint]{Error: err.Error()}
	}
	return models.Section[[]models.HistoryPoint]{Data: data}
}

func (s *Service) nearbySection(ctx context.Context, c models.Coordinates) models.Section[[]models.AirQualityReading] {
	stations, err := s.src.Stations.NearbyStations(ctx, c.Lat, c.Lon, nearbyRadius, nearbyLimit)
	if err != nil {
		return models.Section[[]models.AirQualityReading]{Error: err.Error()}
	}
	return models.Section[[]models.AirQualityReading]{Data: classifyAll(stations)}
}

func (s *Service) mapSection(ctx context.Context, c models.Coordinates) models.Section[[]models.AirQualityReading] {
	b := datasource.Bounds{Lat1: c.Lat - mapSpan, Lon1: c.Lon - mapSpan, Lat2: c.Lat + mapSpan, Lon2: c.Lon + mapSpan}
	stations, err := s.src.Stations.MapStations(ctx, b)
	if err != nil {
		return models.Section[[]models.AirQualityReading]{Error: err.Error()}
	}
	return models.Section[[]models.AirQualityReading]{Data: classifyAll(stations)}
}

// forecastSection joins the daily weather forecast with the daily worst OWM
// index. Both halves must succeed.
func (s *Service) forecastSection(ctx context.Context, c models.Coordinates) models.Section[[]models.ForecastDay] {
	var (
		days       []models.DailyWeather
		indices    map[string]int
		weatherErr error
		aqiErr     error
	)
	var g errgroup.Group
	g.Go(func() error {
		days, weatherErr = s.src.Weather.WeatherForecast(ctx, c.Lat, c.Lon)
		return nil
	})
	g.Go(func() error {
		indices, aqiErr = s.src.Weather.AQIForecast(ctx, c.Lat, c.Lon)
		return nil
	})
	_ = g.Wait()

	if weatherErr != nil || aqiErr != nil {
		return models.Section[[]models.ForecastDay]{
			Error: fmt.Sprintf("Weather: %s | AQI: %s", errOrOK(weatherErr), errOrOK(aqiErr)),
		}
	}
	return models.Section[[]models.ForecastDay]{Data: CombineForecast(days, indices)}
}

// CombineForecast attaches each day's OWM category, "N/A" when none was forecast
func CombineForecast(days []models.DailyWeather, indices map[string]int) []models.ForecastDay {
	out := make([]models.ForecastDay, 0, len(days))
	for _, d := range days {
		fd := models.ForecastDay{DailyWeather: d, Category: notAvailable}
		if idx, ok := indices[d.Date.UTC().Format("2006-01-02")]; ok && idx != 0 {
			idx := idx
			fd.MaxIndex = &idx
			fd.Category = aqi.ResolveOWM(idx)
		}
		out = append(out, fd)
	}
	return out
}

func classifyAll(stations []models.Observation) []models.AirQualityReading {
	out := make([]models.AirQualityReading, 0, len(stations))
	for _, st := range stations {
		out = append(out, aqi.ClassifyObservation(st))
	}
	return out
}

func errOrOK(err error) string {
	if err == nil {
		return "OK"
	}
	return err.Error()
}
