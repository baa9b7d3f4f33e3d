package datasource

import (
	"context"
	"fmt"

	"airquality-service/models"

	"golang.org/x/time/rate"
)

// RateLimitedFeed wraps a StationFeed with client-side request pacing
type RateLimitedFeed struct {
	feed    StationFeed
	limiter *rate.Limiter
	name    string
}

// NewRateLimitedFeed creates a new rate limited station feed.
// rps is the maximum requests per second allowed (can be fractional for less than 1 request per second)
// burst is the maximum burst size allowed
func NewRateLimitedFeed(feed StationFeed, rps float64, burst int) *RateLimitedFeed {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedFeed{
		feed:    feed,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    fmt.Sprintf("%s [Rate Limited]", feed.Name()),
	}
}

// FetchStation waits for the limiter, then forwards to the underlying feed
func (r *RateLimitedFeed) FetchStation(ctx context.Context, id string) (models.Observation, error) {
	// Wait for rate limiter permission or context cancellation
	if err := r.limiter.Wait(ctx); err != nil {
		return models.Observation{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.feed.FetchStation(ctx, id)
}

// Name returns the feed name
func (r *RateLimitedFeed) Name() string {
	return r.name
}

var _ StationFeed = (*RateLimitedFeed)(nil)
