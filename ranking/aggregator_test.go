package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-service/datasource"
	"airquality-service/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func locations(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("city-%02d", i)
	}
	return out
}

func TestRank_EmptyLocationsDispatchesNothing(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, loc string) Outcome {
		atomic.AddInt32(&calls, 1)
		return SoftFailed()
	}

	res := Rank(context.Background(), nil, fetch, 5, WithLogger(quietLogger()))

	assert.Empty(t, res.Entries)
	assert.Empty(t, res.Errors)
	assert.NotNil(t, res.Entries)
	assert.NotNil(t, res.Errors)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRank_MixedOutcomes(t *testing.T) {
	locs := locations(20)
	idx := make(map[string]int, len(locs))
	for i, l := range locs {
		idx[l] = i
	}

	fetch := func(ctx context.Context, loc string) Outcome {
		i := idx[loc]
		switch {
		case i < 15:
			return Succeeded(models.Observation{Source: models.SourceWAQI, Location: loc, Value: float64(10 * i)})
		case i < 18:
			return SoftFailed()
		default:
			return HardFailed(errors.New("WAQI: invalid API key"))
		}
	}

	res := Rank(context.Background(), locs, fetch, 5, WithLogger(quietLogger()))

	assert.Len(t, res.Entries, 15)
	assert.Equal(t, []string{"WAQI: invalid API key"}, res.Errors)
	for _, e := range res.Entries {
		require.NotNil(t, e.RawValue)
		assert.NotEqual(t, "Unknown", e.CategoryLabel)
	}
	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.ID)
}

func TestRank_DistinctErrorsKeepFirstSeenOrderAndSummarize(t *testing.T) {
	fetch := func(ctx context.Context, loc string) Outcome {
		return HardFailed(fmt.Errorf("boom %s", loc))
	}

	// limit 1 makes completion order equal to request order
	res := Rank(context.Background(), []string{"a", "b", "a2", "c"}, fetch, 1, WithLogger(quietLogger()))

	assert.Equal(t, []string{"boom a", "boom b", "boom a2", "boom c"}, res.Errors)
	assert.Equal(t, "boom a; boom b...", res.ErrorSummary())
	assert.True(t, res.Failed())
	assert.Empty(t, res.Entries)
}

func TestRank_ConcurrencyBoundIsEnforced(t *testing.T) {
	const (
		limit   = 5
		n       = 20
		latency = 60 * time.Millisecond
	)

	var inFlight, peak int32
	fetch := func(ctx context.Context, loc string) Outcome {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(latency)
		atomic.AddInt32(&inFlight, -1)
		return Succeeded(models.Observation{Location: loc, Value: 42})
	}

	start := time.Now()
	res := Rank(context.Background(), locations(n), fetch, limit, WithLogger(quietLogger()))
	elapsed := time.Since(start)

	assert.Len(t, res.Entries, n)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
	assert.Equal(t, int32(limit), atomic.LoadInt32(&peak))

	waves := (n + limit - 1) / limit
	assert.GreaterOrEqual(t, elapsed, time.Duration(waves)*latency)
	assert.Less(t, elapsed, time.Duration(waves)*latency+latency)
}

func TestRank_WaitsForEverySlowFetch(t *testing.T) {
	var done int32
	fetch := func(ctx context.Context, loc string) Outcome {
		if loc == "slow" {
			time.Sleep(80 * time.Millisecond)
		}
		atomic.AddInt32(&done, 1)
		return Succeeded(models.Observation{Location: loc, Value: 5})
	}

	res := Rank(context.Background(), []string{"fast", "slow", "fast2"}, fetch, 0, WithLogger(quietLogger()))

	assert.Equal(t, int32(3), atomic.LoadInt32(&done))
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "slow", res.Entries[2].LocationLabel)
}

func TestRank_PanickingFetchIsHardFail(t *testing.T) {
	fetch := func(ctx context.Context, loc string) Outcome {
		if loc == "bad" {
			panic("kaboom")
		}
		return Succeeded(models.Observation{Location: loc, Value: 75})
	}

	res := Rank(context.Background(), []string{"ok", "bad"}, fetch, 2, WithLogger(quietLogger()))

	assert.Len(t, res.Entries, 1)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "kaboom")
}

func TestRank_UnclassifiableSuccessIsDropped(t *testing.T) {
	fetch := func(ctx context.Context, loc string) Outcome {
		return Succeeded(models.Observation{Location: loc, Value: -1})
	}

	res := Rank(context.Background(), []string{"x"}, fetch, 1, WithLogger(quietLogger()))

	assert.Empty(t, res.Entries)
	assert.Empty(t, res.Errors)
}

func TestRank_SortByValueDesc(t *testing.T) {
	values := map[string]float64{"a": 42, "b": 187, "c": 5}
	fetch := func(ctx context.Context, loc string) Outcome {
		return Succeeded(models.Observation{Location: loc, Value: values[loc]})
	}

	res := Rank(context.Background(), []string{"a", "b", "c"}, fetch, 3, WithLogger(quietLogger()))
	sorted := res.Sorted()

	got := make([]float64, len(sorted))
	for i, r := range sorted {
		got[i] = r.Value()
	}
	assert.Equal(t, []float64{187, 42, 5}, got)
	assert.Equal(t, "b", res.Top(1)[0].LocationLabel)
}

type countingObserver struct {
	mu      sync.Mutex
	started int
	kinds   map[Kind]int
}

func (c *countingObserver) FetchStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingObserver) FetchFinished(kind Kind, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[kind]++
}

func TestRank_ObserverSeesEveryFetch(t *testing.T) {
	obs := &countingObserver{kinds: map[Kind]int{}}
	fetch := func(ctx context.Context, loc string) Outcome {
		switch loc {
		case "soft":
			return SoftFailed()
		case "hard":
			return HardFailed(errors.New("x"))
		}
		return Succeeded(models.Observation{Location: loc, Value: 1})
	}

	Rank(context.Background(), []string{"ok", "soft", "hard"}, fetch, 2, WithLogger(quietLogger()), WithObserver(obs))

	assert.Equal(t, 3, obs.started)
	assert.Equal(t, map[Kind]int{Success: 1, SoftFail: 1, HardFail: 1}, obs.kinds)
}

func TestClassify(t *testing.T) {
	obs := models.Observation{Location: "x", Value: 10}
	assert.Equal(t, Success, Classify(obs, nil).Kind)
	assert.Equal(t, SoftFail, Classify(models.Observation{}, datasource.ErrNoReading).Kind)
	assert.Equal(t, SoftFail, Classify(models.Observation{}, fmt.Errorf("wrapped: %w", datasource.ErrNoReading)).Kind)

	hard := Classify(models.Observation{}, errors.New("network down"))
	assert.Equal(t, HardFail, hard.Kind)
	assert.EqualError(t, hard.Err, "network down")
}

type stubFeed struct {
	calls int32
}

func (s *stubFeed) Name() string { return "stub" }

func (s *stubFeed) FetchStation(ctx context.Context, id string) (models.Observation, error) {
	atomic.AddInt32(&s.calls, 1)
	return models.Observation{Source: models.SourceWAQI, Location: id, Value: 99}, nil
}

func TestService_MissingKeyShortCircuits(t *testing.T) {
	feed := &stubFeed{}
	svc := NewService(feed, ServiceConfig{Locations: []string{"a", "b"}}, quietLogger(), nil)

	_, err := svc.Refresh(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, datasource.ErrMissingAPIKey)
	assert.Equal(t, int32(0), atomic.LoadInt32(&feed.calls))
}

func TestService_Refresh(t *testing.T) {
	feed := &stubFeed{}
	svc := NewService(feed, ServiceConfig{APIKey: "k", Locations: []string{"a", "b"}, Concurrency: 2}, quietLogger(), nil)

	res, err := svc.Refresh(context.Background())

	require.NoError(t, err)
	assert.Len(t, res.Entries, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&feed.calls))
	assert.Equal(t, []string{"a", "b"}, svc.Locations())
}

func TestService_DefaultLocations(t *testing.T) {
	svc := NewService(&stubFeed{}, ServiceConfig{APIKey: "k"}, nil, nil)
	assert.Len(t, svc.Locations(), 20)
}
