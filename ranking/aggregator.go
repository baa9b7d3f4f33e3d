// Package ranking fetches AQI for a list of monitored locations concurrently
// and collects the classified results.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"airquality-service/aqi"
	"airquality-service/models"
)

// DefaultConcurrency is the number of fetches allowed in flight at once
const DefaultConcurrency = 5

// Observer is notified around every fetch, e.g. to export metrics
type Observer interface {
	FetchStarted()
	FetchFinished(kind Kind, elapsed time.Duration)
}

type options struct {
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures Rank
type Option func(*options)

// WithLogger sets the logger used for per-location outcomes
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a fetch observer
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithClock overrides the time source used for result timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// collector is the only state shared between workers
type collector struct {
	mu      sync.Mutex
	entries []models.AirQualityReading
	errors  []string
	seen    map[string]struct{}
}

func (c *collector) add(r models.AirQualityReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, r)
}

func (c *collector) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[msg]; dup {
		return
	}
	c.seen[msg] = struct{}{}
	c.errors = append(c.errors, msg)
}

// Rank fetches every location with at most limit fetches in flight, waits for
// all of them to settle and returns what they produced. Entries are in
// completion order. Soft fails are dropped, hard-fail messages are collected
// once each. A failing location never stops the others. limit <= 0 means
// DefaultConcurrency.
func Rank(ctx context.Context, locations []string, fetch FetchFunc, limit int, opts ...Option) models.RankingResult {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	result := models.RankingResult{
		ID:        uuid.NewString(),
		Entries:   []models.AirQualityReading{},
		Errors:    []string{},
		StartedAt: o.now(),
	}
	if len(locations) == 0 {
		result.CompletedAt = result.StartedAt
		return result
	}

	c := &collector{
		entries: make([]models.AirQualityReading, 0, len(locations)),
		errors:  []string{},
		seen:    make(map[string]struct{}),
	}

	// Workers always return nil so one failure never cancels the group.
	var g errgroup.Group
	g.SetLimit(limit)
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			runOne(ctx, loc, fetch, c, &o)
			return nil
		})
	}
	_ = g.Wait()

	result.Entries = c.entries
	result.Errors = c.errors
	result.CompletedAt = o.now()

	o.logger.Info("ranking complete",
		"id", result.ID,
		"locations", len(locations),
		"entries", len(result.Entries),
		"errors", len(result.Errors),
		"elapsed", result.CompletedAt.Sub(result.StartedAt),
	)
	return result
}

func runOne(ctx context.Context, loc string, fetch FetchFunc, c *collector, o *options) {
	if o.observer != nil {
		o.observer.FetchStarted()
	}
	start := time.Now()
	out := safeFetch(ctx, loc, fetch)
	if o.observer != nil {
		o.observer.FetchFinished(out.Kind, time.Since(start))
	}

	switch out.Kind {
	case Success:
		reading := aqi.ClassifyObservation(out.Observation)
		if reading.RawValue == nil {
			// negative or otherwise unclassifiable values carry no usable reading
			o.logger.Debug("ranking fetch skipped", "location", loc, "aqi", out.Observation.Value)
			return
		}
		if reading.LocationLabel == "" {
			reading.LocationLabel = loc
		}
		c.add(reading)
		o.logger.Debug("ranking fetch ok", "location", loc, "aqi", out.Observation.Value, "category", reading.CategoryLabel)
	case SoftFail:
		o.logger.Debug("ranking fetch skipped", "location", loc)
	default:
		msg := "unknown error"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		c.fail(msg)
		o.logger.Warn("ranking fetch failed", "location", loc, "error", msg)
	}
}

// safeFetch turns a panicking fetch into a hard fail
func safeFetch(ctx context.Context, loc string, fetch FetchFunc) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = HardFailed(fmt.Errorf("ranking fetch %q panicked: %v", loc, r))
		}
	}()
	return fetch(ctx, loc)
}
