package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"airquality-service/models"
)

const (
	owmGeocodeTimeout  = 10 * time.Second
	owmWeatherTimeout  = 15 * time.Second
	owmForecastTimeout = 15 * time.Second
	owmHistoryTimeout  = 20 * time.Second

	// maxForecastDays is how many daily summaries the 5-day forecast yields
	maxForecastDays = 6

	dateKeyLayout = "2006-01-02"
)

// OpenWeatherMapProvider implements WeatherSource and Geocoder
type OpenWeatherMapProvider struct {
	apiKey  string
	baseURL string
	http    httpGetter
	now     func() time.Time
}

// NewOpenWeatherMapProvider creates a new OpenWeatherMap provider
func NewOpenWeatherMapProvider(apiKey string) *OpenWeatherMapProvider {
	return NewOpenWeatherMapProviderWithClient(apiKey, "http://api.openweathermap.org", &http.Client{})
}

// NewOpenWeatherMapProviderWithClient creates an OpenWeatherMap provider against a custom endpoint
func NewOpenWeatherMapProviderWithClient(apiKey, baseURL string, client *http.Client) *OpenWeatherMapProvider {
	return &OpenWeatherMapProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPGetter("OpenWeatherMap", client),
		now:     time.Now,
	}
}

// Name returns the provider name
func (p *OpenWeatherMapProvider) Name() string {
	return "OpenWeatherMap"
}

// Geocode resolves a location. When "city,state,country" is not found it
// retries with "city,country", unless the key itself was rejected.
func (p *OpenWeatherMapProvider) Geocode(ctx context.Context, city, state, country string) (models.Coordinates, error) {
	full := strings.Trim(fmt.Sprintf("%s,%s,%s", city, state, country), ",")
	coords, err := p.geocode(ctx, full)
	if err == nil || errors.Is(err, ErrInvalidAPIKey) {
		return coords, err
	}

	simple := strings.Trim(fmt.Sprintf("%s,%s", city, country), ",")
	if simple == full {
		return coords, err
	}
	return p.geocode(ctx, simple)
}

func (p *OpenWeatherMapProvider) geocode(ctx context.Context, query string) (models.Coordinates, error) {
	if p.apiKey == "" {
		return models.Coordinates{}, providerErr(p.Name(), ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("limit", "1")
	params.Add("appid", p.apiKey)

	var results []struct {
		Name    string   `json:"name"`
		Lat     *float64 `json:"lat"`
		Lon     *float64 `json:"lon"`
		Country string   `json:"country"`
	}
	if _, err := p.http.getJSON(ctx, owmGeocodeTimeout, p.baseURL+"/geo/1.0/direct", params, &results, false); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return models.Coordinates{}, err
		}
		return models.Coordinates{}, fmt.Errorf("geocoding %q: %w", query, err)
	}
	if len(results) == 0 {
		return models.Coordinates{}, fmt.Errorf("geocoding failed: location %q not found", query)
	}
	r := results[0]
	if r.Lat == nil || r.Lon == nil {
		return models.Coordinates{}, fmt.Errorf("geocoding failed: lat/lon not found for %q", query)
	}
	return models.Coordinates{Lat: *r.Lat, Lon: *r.Lon, Name: r.Name, Country: r.Country}, nil
}

// CurrentWeather fetches current conditions for "city,country"
func (p *OpenWeatherMapProvider) CurrentWeather(ctx context.Context, city, country string) (models.WeatherData, error) {
	if p.apiKey == "" {
		return models.WeatherData{}, providerErr(p.Name(), ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Add("q", fmt.Sprintf("%s,%s", city, country))
	params.Add("appid", p.apiKey)
	params.Add("units", "metric")

	var response struct {
		Cod     json.Number `json:"cod"`
		Message string      `json:"message"`
		Main    struct {
			Temp      *float64 `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  *float64 `json:"humidity"`
			Pressure  *float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed *float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
		Name string `json:"name"`
		Dt   int64  `json:"dt"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
	}
	if _, err := p.http.getJSON(ctx, owmWeatherTimeout, p.baseURL+"/data/2.5/weather", params, &response, false); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return models.WeatherData{}, err
		}
		return models.WeatherData{}, fmt.Errorf("OWM API error: %w", err)
	}
	if code, err := strconv.Atoi(response.Cod.String()); err != nil || code != http.StatusOK {
		return models.WeatherData{}, fmt.Errorf("OWM API error: %s (code: %s)", firstNonEmpty(response.Message, "Unknown"), response.Cod)
	}

	description := "N/A"
	icon := ""
	if len(response.Weather) > 0 {
		description = capitalize(response.Weather[0].Description)
		icon = response.Weather[0].Icon
	}

	data := models.WeatherData{
		Provider:    p.Name(),
		Location:    response.Name,
		Country:     response.Sys.Country,
		Temperature: response.Main.Temp,
		FeelsLike:   response.Main.FeelsLike,
		Humidity:    response.Main.Humidity,
		Pressure:    response.Main.Pressure,
		WindSpeed:   response.Wind.Speed,
		Description: description,
		Icon:        icon,
		Timestamp:   p.now(),
	}
	if response.Dt > 0 {
		data.Timestamp = time.Unix(response.Dt, 0)
	}
	return data, nil
}

// WeatherForecast condenses the 3-hourly 5-day forecast into daily summaries
func (p *OpenWeatherMapProvider) WeatherForecast(ctx context.Context, lat, lon float64) ([]models.DailyWeather, error) {
	var response struct {
		List *[]struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp *float64 `json:"temp"`
			} `json:"main"`
			Weather []struct {
				Description string `json:"description"`
				Icon        string `json:"icon"`
			} `json:"weather"`
		} `json:"list"`
	}
	if err := p.coordsGet(ctx, owmForecastTimeout, "/data/2.5/forecast", lat, lon, true, &response); err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}
	if response.List == nil {
		return nil, errors.New("weather forecast: unexpected API response format")
	}

	type summary struct {
		date       time.Time
		min, max   *float64
		conditions []string
		middayIcon string
		firstIcon  string
	}
	days := map[string]*summary{}

	// Process 3-hourly data
	for _, item := range *response.List {
		ts := time.Unix(item.Dt, 0).UTC()
		key := ts.Format(dateKeyLayout)
		s, ok := days[key]
		if !ok {
			s = &summary{date: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)}
			days[key] = s
		}
		if t := item.Main.Temp; t != nil {
			if s.min == nil || *t < *s.min {
				s.min = floatPtr(*t)
			}
			if s.max == nil || *t > *s.max {
				s.max = floatPtr(*t)
			}
		}
		if len(item.Weather) == 0 {
			continue
		}
		w := item.Weather[0]
		if w.Description != "" {
			s.conditions = append(s.conditions, w.Description)
		}
		if w.Icon != "" {
			// prefer an icon from around midday, the latest one wins
			if h := ts.Hour(); h >= 11 && h <= 14 {
				s.middayIcon = w.Icon
			} else if s.firstIcon == "" {
				s.firstIcon = w.Icon
			}
		}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.DailyWeather, 0, len(keys))
	for _, k := range keys {
		s := days[k]
		out = append(out, models.DailyWeather{
			Date:        s.date,
			MaxTemp:     s.max,
			MinTemp:     s.min,
			Description: capitalize(mostCommon(s.conditions, "N/A")),
			Icon:        firstNonEmpty(s.middayIcon, s.firstIcon),
		})
	}
	if len(out) > maxForecastDays {
		out = out[:maxForecastDays]
	}
	return out, nil
}

// AQIForecast returns the worst forecast OWM index per UTC day, keyed "2006-01-02"
func (p *OpenWeatherMapProvider) AQIForecast(ctx context.Context, lat, lon float64) (map[string]int, error) {
	var response struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				AQI *int `json:"aqi"`
			} `json:"main"`
		} `json:"list"`
	}
	if err := p.coordsGet(ctx, owmForecastTimeout, "/data/2.5/air_pollution/forecast", lat, lon, false, &response); err != nil {
		return nil, fmt.Errorf("AQI forecast: %w", err)
	}

	daily := make(map[string]int)
	for _, h := range response.List {
		if h.Main.AQI == nil {
			continue
		}
		key := time.Unix(h.Dt, 0).UTC().Format(dateKeyLayout)
		if cur, ok := daily[key]; !ok || *h.Main.AQI > cur {
			daily[key] = *h.Main.AQI
		}
	}
	return daily, nil
}

// PM25History returns hourly PM2.5 for the last days, oldest first
func (p *OpenWeatherMapProvider) PM25History(ctx context.Context, lat, lon float64, days int) ([]models.HistoryPoint, error) {
	if p.apiKey == "" {
		return nil, providerErr(p.Name(), ErrMissingAPIKey)
	}

	end := p.now().Unix()
	start := end - int64(days)*24*60*60

	params := coordParams(lat, lon, p.apiKey)
	params.Add("start", strconv.FormatInt(start, 10))
	params.Add("end", strconv.FormatInt(end, 10))

	var response struct {
		List *[]struct {
			Dt         *int64 `json:"dt"`
			Components struct {
				PM25 *float64 `json:"pm2_5"`
			} `json:"components"`
		} `json:"list"`
	}
	if _, err := p.http.getJSON(ctx, owmHistoryTimeout, p.baseURL+"/data/2.5/air_pollution/history", params, &response, false); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, err
		}
		return nil, fmt.Errorf("history: %w", err)
	}
	if response.List == nil {
		return nil, errors.New("history: unexpected response format (missing 'list')")
	}

	history := make([]models.HistoryPoint, 0, len(*response.List))
	for _, entry := range *response.List {
		if entry.Dt == nil || entry.Components.PM25 == nil {
			continue
		}
		history = append(history, models.HistoryPoint{
			Timestamp: time.Unix(*entry.Dt, 0).UTC(),
			PM25:      *entry.Components.PM25,
		})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })
	return history, nil
}

func (p *OpenWeatherMapProvider) coordsGet(ctx context.Context, timeout time.Duration, path string, lat, lon float64, metric bool, target any) error {
	if p.apiKey == "" {
		return providerErr(p.Name(), ErrMissingAPIKey)
	}
	params := coordParams(lat, lon, p.apiKey)
	if metric {
		params.Add("units", "metric")
	}
	_, err := p.http.getJSON(ctx, timeout, p.baseURL+path, params, target, false)
	return err
}

func coordParams(lat, lon float64, apiKey string) url.Values {
	params := url.Values{}
	params.Add("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Add("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Add("appid", apiKey)
	return params
}

// mostCommon returns the most frequent value; the first to reach the top count wins
func mostCommon(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

var (
	_ WeatherSource = (*OpenWeatherMapProvider)(nil)
	_ Geocoder      = (*OpenWeatherMapProvider)(nil)
)
