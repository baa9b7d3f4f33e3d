package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"airquality-service/datasource"
	"airquality-service/models"
)

// locationKey identifies a city lookup regardless of letter case
type locationKey struct {
	City, State, Country string
}

func newLocationKey(city, state, country string) locationKey {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return locationKey{norm(city), norm(state), norm(country)}
}

// CachedCityAQISource wraps a CityAQISource and adds caching functionality
type CachedCityAQISource struct {
	source datasource.CityAQISource
	cache  *TTLCache[locationKey, models.CityAQI]
	logger *slog.Logger
}

// NewCachedCityAQISource creates a new cached wrapper around a city AQI source
func NewCachedCityAQISource(source datasource.CityAQISource, cacheDuration time.Duration, logger *slog.Logger) *CachedCityAQISource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCityAQISource{
		source: source,
		cache:  NewTTLCache[locationKey, models.CityAQI](cacheDuration),
		logger: logger,
	}
}

// Name returns the name of the underlying source with [Cached] suffix
func (c *CachedCityAQISource) Name() string {
	return c.source.Name() + " [Cached]"
}

// CityAQI returns a cached reading when one is fresh enough. Errors are never cached.
func (c *CachedCityAQISource) CityAQI(ctx context.Context, city, state, country string) (models.CityAQI, error) {
	key := newLocationKey(city, state, country)
	if data, ok := c.cache.Get(key); ok {
		age, _ := c.cache.Age(key)
		c.logger.Debug("cache hit", "source", c.source.Name(), "city", city, "age", age.Round(time.Second))
		return data, nil
	}

	c.logger.Debug("cache miss", "source", c.source.Name(), "city", city)
	data, err := c.source.CityAQI(ctx, city, state, country)
	if err != nil {
		return models.CityAQI{}, err
	}
	c.cache.Set(key, data)
	return data, nil
}

// CacheStats returns statistics about cache hits and misses
func (c *CachedCityAQISource) CacheStats() (hits, misses int) {
	return c.cache.CacheStats()
}

// Prune drops expired lookups
func (c *CachedCityAQISource) Prune() int {
	return c.cache.Prune()
}

// Len returns the number of cached lookups
func (c *CachedCityAQISource) Len() int {
	return c.cache.Len()
}

// CachedGeocoder memoizes geocoding results; coordinates rarely change
type CachedGeocoder struct {
	geocoder datasource.Geocoder
	cache    *TTLCache[locationKey, models.Coordinates]
}

// NewCachedGeocoder creates a new cached wrapper around a geocoder
func NewCachedGeocoder(geocoder datasource.Geocoder, cacheDuration time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		geocoder: geocoder,
		cache:    NewTTLCache[locationKey, models.Coordinates](cacheDuration),
	}
}

// Geocode resolves a location, using the cache when available
func (c *CachedGeocoder) Geocode(ctx context.Context, city, state, country string) (models.Coordinates, error) {
	key := newLocationKey(city, state, country)
	if coords, ok := c.cache.Get(key); ok {
		return coords, nil
	}
	coords, err := c.geocoder.Geocode(ctx, city, state, country)
	if err != nil {
		return models.Coordinates{}, err
	}
	c.cache.Set(key, coords)
	return coords, nil
}

// CacheStats returns statistics about cache hits and misses
func (c *CachedGeocoder) CacheStats() (hits, misses int) {
	return c.cache.CacheStats()
}

// Prune drops expired coordinates
func (c *CachedGeocoder) Prune() int {
	return c.cache.Prune()
}

// Len returns the number of cached coordinates
func (c *CachedGeocoder) Len() int {
	return c.cache.Len()
}

// Pruner is a cache that can drop its expired entries
type Pruner interface {
	Prune() int
}

// PruneEvery prunes every cache on each tick until ctx is done
func PruneEvery(ctx context.Context, interval time.Duration, logger *slog.Logger, caches ...Pruner) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, c := range caches {
				if n := c.Prune(); n > 0 {
					logger.Debug("pruned cache entries", "count", n)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Ensure the cached wrappers implement the datasource interfaces
var (
	_ datasource.CityAQISource = (*CachedCityAQISource)(nil)
	_ datasource.Geocoder      = (*CachedGeocoder)(nil)
	_ Pruner                   = (*CachedCityAQISource)(nil)
	_ Pruner                   = (*CachedGeocoder)(nil)
)
