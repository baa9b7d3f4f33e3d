package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"airquality-service/datasource"
	"airquality-service/models"
	"airquality-service/ranking"
)

// MockStationFeed simulates provider latency, tracks concurrency and fails
// some identifiers the way WAQI does
type MockStationFeed struct {
	latency   time.Duration
	mutex     sync.Mutex
	callCount int
	inFlight  int
	peak      int
}

func (m *MockStationFeed) Name() string {
	return "MockWAQI"
}

func (m *MockStationFeed) FetchStation(ctx context.Context, id string) (models.Observation, error) {
	m.mutex.Lock()
	m.callCount++
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	current := m.callCount
	m.mutex.Unlock()

	defer func() {
		m.mutex.Lock()
		m.inFlight--
		m.mutex.Unlock()
	}()

	fmt.Printf("%s - Processing request #%d for %s\n", time.Now().Format("15:04:05.000"), current, id)

	// Simulate work/latency
	select {
	case <-time.After(m.latency):
	case <-ctx.Done():
		return models.Observation{}, ctx.Err()
	}

	switch current % 10 {
	case 7:
		return models.Observation{}, datasource.ErrNoReading
	case 9:
		return models.Observation{}, fmt.Errorf("MockWAQI: service unavailable (too many requests)")
	}
	return models.Observation{
		Source:   models.SourceWAQI,
		Location: id,
		Value:    float64(rand.Intn(400)),
		Observed: time.Now(),
	}, nil
}

func (m *MockStationFeed) Stats() (calls, peak int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.callCount, m.peak
}

func main() {
	// Parse command-line flags
	concurrency := flag.Int("concurrency", ranking.DefaultConcurrency, "Maximum fetches in flight")
	latency := flag.Duration("latency", 300*time.Millisecond, "Simulated provider latency")
	rps := flag.Float64("rps", 0, "Optional rate limit in requests per second (0 disables)")
	burst := flag.Int("burst", 3, "Burst size when rate limiting")
	top := flag.Int("top", 10, "Entries to print")
	flag.Parse()

	if *concurrency < 1 {
		*concurrency = ranking.DefaultConcurrency
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := &MockStationFeed{latency: *latency}
	var feed datasource.StationFeed = mock
	if *rps > 0 {
		feed = datasource.NewRateLimitedFeed(mock, *rps, *burst)
	}

	locations := ranking.DefaultLocations
	fmt.Printf("Ranking %d locations via %s\n", len(locations), feed.Name())
	fmt.Printf("- Concurrency: %d\n", *concurrency)
	fmt.Printf("- Latency: %s\n", *latency)
	fmt.Println("Starting...")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := time.Now()
	result := ranking.Rank(ctx, locations, ranking.FromFeed(feed), *concurrency, ranking.WithLogger(logger))
	elapsed := time.Since(start)

	calls, peak := mock.Stats()
	waves := (len(locations) + *concurrency - 1) / *concurrency

	fmt.Println("\nRanking completed!")
	fmt.Printf("Total time: %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Expected minimum (%d waves): %s\n", waves, time.Duration(waves)*(*latency))
	fmt.Printf("Fetches: %d, peak in flight: %d\n", calls, peak)
	fmt.Printf("Entries: %d, distinct errors: %d\n", len(result.Entries), len(result.Errors))
	if summary := result.ErrorSummary(); summary != "" {
		fmt.Printf("Errors: %s\n", summary)
	}

	fmt.Println()
	for i, r := range result.Top(*top) {
		fmt.Printf("%2d. %-16s %5.0f  %s\n", i+1, r.LocationLabel, r.Value(), r.CategoryLabel)
	}

	if peak > *concurrency {
		fmt.Println("\nWARNING: more fetches were in flight than the configured bound!")
		os.Exit(1)
	}
}
