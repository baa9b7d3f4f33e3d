package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"airquality-service/aqi"
	"airquality-service/models"
)

const iqairTimeout = 15 * time.Second

// IQAirProvider fetches city-level US AQI from IQAir (AirVisual)
type IQAirProvider struct {
	apiKey  string
	baseURL string
	http    httpGetter
}

// NewIQAirProvider creates a new IQAir provider
func NewIQAirProvider(apiKey string) *IQAirProvider {
	return NewIQAirProviderWithClient(apiKey, "http://api.airvisual.com/v2", &http.Client{})
}

// NewIQAirProviderWithClient creates an IQAir provider against a custom endpoint
func NewIQAirProviderWithClient(apiKey, baseURL string, client *http.Client) *IQAirProvider {
	return &IQAirProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPGetter("IQAir", client),
	}
}

// Name returns the provider name
func (p *IQAirProvider) Name() string {
	return "IQAir"
}

type iqairResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type iqairCity struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Current struct {
		Pollution struct {
			TS     string `json:"ts"`
			AQIUS  any    `json:"aqius"`
			MainUS string `json:"mainus"`
		} `json:"pollution"`
	} `json:"current"`
}

// CityAQI fetches the current pollution reading for a city
func (p *IQAirProvider) CityAQI(ctx context.Context, city, state, country string) (models.CityAQI, error) {
	if p.apiKey == "" {
		return models.CityAQI{}, providerErr(p.Name(), ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Add("city", city)
	params.Add("state", state)
	params.Add("country", country)
	params.Add("key", p.apiKey)

	var resp iqairResponse
	if _, err := p.http.getJSON(ctx, iqairTimeout, p.baseURL+"/city", params, &resp, true); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return models.CityAQI{}, err
		}
		return models.CityAQI{}, fmt.Errorf("IQAir API error: %w", err)
	}

	if resp.Status != "success" {
		var fail struct {
			Message string `json:"message"`
		}
		msg := "Unknown"
		if err := json.Unmarshal(resp.Data, &fail); err == nil && fail.Message != "" {
			msg = fail.Message
		}
		if msg == "incorrect_api_key" || msg == "api_key_expired" {
			return models.CityAQI{}, providerErr(p.Name(), ErrInvalidAPIKey)
		}
		return models.CityAQI{}, fmt.Errorf("IQAir API error: %s", msg)
	}

	var data iqairCity
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return models.CityAQI{}, fmt.Errorf("IQAir API error: unexpected response shape: %w", err)
	}

	out := models.CityAQI{
		City:          firstNonEmpty(data.City, city),
		State:         firstNonEmpty(data.State, state),
		Country:       firstNonEmpty(data.Country, country),
		MainPollutant: data.Current.Pollution.MainUS,
	}
	if v, ok := aqi.ParseValue(data.Current.Pollution.AQIUS); ok {
		out.AQIUS = floatPtr(v)
	}
	if ts, err := time.Parse(time.RFC3339, data.Current.Pollution.TS); err == nil {
		out.Timestamp = ts
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ CityAQISource = (*IQAirProvider)(nil)
