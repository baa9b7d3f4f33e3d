package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"airquality-service/datasource"
	"airquality-service/models"
)

// DefaultLocations are the monitored WAQI identifiers: station codes ("@uid")
// and city names.
var DefaultLocations = []string{
	"@1437", "@3362", "@990", "lahore", "karachi", "kolkata", "mumbai",
	"kathmandu", "hanoi", "jakarta/central", "bangkok", "shanghai", "wuhan",
	"london", "paris", "los angeles", "new york", "mexico city", "sao paulo", "lima",
}

// ServiceConfig holds what a ranking refresh needs
type ServiceConfig struct {
	APIKey      string
	Locations   []string
	Concurrency int
}

// Service builds a fresh ranking over a configured location list
type Service struct {
	fetch     FetchFunc
	apiKey    string
	locations []string
	limit     int
	logger    *slog.Logger
	observer  Observer
}

// NewService creates a ranking service over a station feed
func NewService(feed datasource.StationFeed, cfg ServiceConfig, logger *slog.Logger, observer Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	locations := cfg.Locations
	if len(locations) == 0 {
		locations = DefaultLocations
	}
	return &Service{
		fetch:     FromFeed(feed),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		locations: append([]string(nil), locations...),
		limit:     cfg.Concurrency,
		logger:    logger.With("component", "ranking"),
		observer:  observer,
	}
}

// Locations returns the monitored identifiers
func (s *Service) Locations() []string {
	return append([]string(nil), s.locations...)
}

// Refresh runs one ranking pass. A missing credential fails the whole request
// before anything is dispatched.
func (s *Service) Refresh(ctx context.Context) (models.RankingResult, error) {
	if s.apiKey == "" {
		return models.RankingResult{}, fmt.Errorf("ranking: WAQI %w", datasource.ErrMissingAPIKey)
	}
	return Rank(ctx, s.locations, s.fetch, s.limit,
		WithLogger(s.logger),
		WithObserver(s.observer),
	), nil
}
