package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"airquality-service/aqi"
	"airquality-service/models"
)

const (
	waqiFeedTimeout   = 10 * time.Second
	waqiNearbyTimeout = 20 * time.Second
	waqiMapTimeout    = 30 * time.Second

	// samePointDeg is how close a station must be to the query point to be
	// treated as the query location itself and left out of nearby results
	samePointDeg = 0.01
)

// Bounds is a latitude/longitude box
type Bounds struct {
	Lat1, Lon1, Lat2, Lon2 float64
}

// World covers the whole globe
var World = Bounds{Lat1: -90, Lon1: -180, Lat2: 90, Lon2: 180}

// Clamp limits the box to valid coordinates
func (b Bounds) Clamp() Bounds {
	return Bounds{
		Lat1: math.Max(-90, b.Lat1),
		Lon1: math.Max(-180, b.Lon1),
		Lat2: math.Min(90, b.Lat2),
		Lon2: math.Min(180, b.Lon2),
	}
}

func (b Bounds) String() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", b.Lat1, b.Lon1, b.Lat2, b.Lon2)
}

// WAQIProvider talks to the World Air Quality Index API (aqicn.org)
type WAQIProvider struct {
	token   string
	baseURL string
	http    httpGetter
	now     func() time.Time
}

// NewWAQIProvider creates a new WAQI provider
func NewWAQIProvider(token string) *WAQIProvider {
	return NewWAQIProviderWithClient(token, "https://api.waqi.info", &http.Client{})
}

// NewWAQIProviderWithClient creates a WAQI provider against a custom endpoint
func NewWAQIProviderWithClient(token, baseURL string, client *http.Client) *WAQIProvider {
	return &WAQIProvider{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPGetter("WAQI", client),
		now:     time.Now,
	}
}

// Name returns the provider name
func (p *WAQIProvider) Name() string {
	return "WAQI"
}

type waqiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type waqiFeed struct {
	AQI  any `json:"aqi"`
	City struct {
		Name string    `json:"name"`
		Geo  []float64 `json:"geo"`
		URL  string    `json:"url"`
	} `json:"city"`
	Time struct {
		V int64 `json:"v"`
	} `json:"time"`
}

type waqiMapStation struct {
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	AQI     any      `json:"aqi"`
	Station struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"station"`
}

// escapeStationPath escapes each segment of a feed identifier but keeps the
// slashes of city paths such as "jakarta/central"
func escapeStationPath(id string) string {
	segments := strings.Split(id, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// FetchStation fetches the current AQI for a city name or "@uid" station code
func (p *WAQIProvider) FetchStation(ctx context.Context, id string) (models.Observation, error) {
	if p.token == "" {
		return models.Observation{}, providerErr(p.Name(), ErrMissingAPIKey)
	}

	endpoint := fmt.Sprintf("%s/feed/%s/", p.baseURL, escapeStationPath(id))
	params := url.Values{}
	params.Add("token", p.token)

	var env waqiEnvelope
	if _, err := p.http.getJSON(ctx, waqiFeedTimeout, endpoint, params, &env, true); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return models.Observation{}, err
		}
		return models.Observation{}, fmt.Errorf("WAQI feed %q: %w", id, err)
	}

	switch env.Status {
	case "ok":
		var feed waqiFeed
		if err := json.Unmarshal(env.Data, &feed); err != nil {
			return models.Observation{}, fmt.Errorf("WAQI feed %q: unexpected response shape: %w", id, err)
		}
		value, ok := aqi.ParseValue(feed.AQI)
		if !ok {
			return models.Observation{}, ErrNoReading
		}
		obs := models.Observation{
			Source:   models.SourceWAQI,
			Location: feed.City.Name,
			Value:    math.Trunc(value),
			URL:      feed.City.URL,
			Observed: p.now(),
		}
		if obs.Location == "" {
			obs.Location = id
		}
		if len(feed.City.Geo) == 2 {
			obs.Lat = floatPtr(feed.City.Geo[0])
			obs.Lon = floatPtr(feed.City.Geo[1])
		}
		if feed.Time.V > 0 {
			obs.Observed = time.Unix(feed.Time.V, 0)
		}
		return obs, nil
	case "error":
		msg := waqiMessage(env.Data)
		switch msg {
		case "Unknown station":
			return models.Observation{}, ErrNoReading
		case "Invalid key":
			return models.Observation{}, providerErr(p.Name(), ErrInvalidAPIKey)
		default:
			return models.Observation{}, fmt.Errorf("WAQI feed %q: %s", id, msg)
		}
	default:
		// "nope" and friends carry no data worth reporting
		return models.Observation{}, ErrNoReading
	}
}

// MapStations lists every station with a numeric AQI inside b
func (p *WAQIProvider) MapStations(ctx context.Context, b Bounds) ([]models.Observation, error) {
	stations, err := p.bounds(ctx, waqiMapTimeout, b.Clamp(), true)
	if err != nil {
		return nil, err
	}
	out := make([]models.Observation, 0, len(stations))
	for _, s := range stations {
		if s.Lat == nil || s.Lon == nil {
			continue
		}
		obs, ok := p.stationObservation(s, "Unknown")
		if !ok {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

// NearbyStations lists up to limit stations within radiusDeg of (lat, lon),
// worst AQI first. The station at the query point itself is left out.
func (p *WAQIProvider) NearbyStations(ctx context.Context, lat, lon, radiusDeg float64, limit int) ([]models.Observation, error) {
	b := Bounds{Lat1: lat - radiusDeg, Lon1: lon - radiusDeg, Lat2: lat + radiusDeg, Lon2: lon + radiusDeg}
	stations, err := p.bounds(ctx, waqiNearbyTimeout, b.Clamp(), false)
	if err != nil {
		return nil, err
	}
	out := make([]models.Observation, 0, len(stations))
	for _, s := range stations {
		if s.Lat != nil && s.Lon != nil && math.Abs(*s.Lat-lat) < samePointDeg && math.Abs(*s.Lon-lon) < samePointDeg {
			continue
		}
		obs, ok := p.stationObservation(s, "Unknown Station")
		if !ok {
			continue
		}
		out = append(out, obs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *WAQIProvider) bounds(ctx context.Context, timeout time.Duration, b Bounds, allNetworks bool) ([]waqiMapStation, error) {
	if p.token == "" {
		return nil, providerErr(p.Name(), ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Add("latlng", b.String())
	params.Add("token", p.token)
	if allNetworks {
		params.Add("networks", "all")
	}

	var env waqiEnvelope
	if _, err := p.http.getJSON(ctx, timeout, p.baseURL+"/map/bounds/", params, &env, false); err != nil {
		return nil, fmt.Errorf("WAQI map: %w", err)
	}
	if env.Status != "ok" {
		msg := waqiMessage(env.Data)
		if msg == "Invalid key" {
			return nil, providerErr(p.Name(), ErrInvalidAPIKey)
		}
		return nil, fmt.Errorf("WAQI map: %s", msg)
	}

	var stations []waqiMapStation
	if err := json.Unmarshal(env.Data, &stations); err != nil {
		return nil, fmt.Errorf("WAQI map: unexpected response shape: %w", err)
	}
	return stations, nil
}

func (p *WAQIProvider) stationObservation(s waqiMapStation, fallbackName string) (models.Observation, bool) {
	value, ok := aqi.ParseValue(s.AQI)
	if !ok {
		return models.Observation{}, false
	}
	name := s.Station.Name
	if name == "" {
		name = fallbackName
	}
	return models.Observation{
		Source:   models.SourceWAQI,
		Location: name,
		Value:    math.Trunc(value),
		Lat:      s.Lat,
		Lon:      s.Lon,
		URL:      s.Station.URL,
		Observed: p.now(),
	}, true
}

// waqiMessage reads the error text WAQI puts in "data" on failure
func waqiMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return "Unknown WAQI error."
}

var (
	_ StationFeed = (*WAQIProvider)(nil)
	_ StationMap  = (*WAQIProvider)(nil)
)
