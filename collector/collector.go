package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"airquality-service/models"
	"airquality-service/publish"
)

// Refresher builds a fresh ranking
type Refresher interface {
	Refresh(ctx context.Context) (models.RankingResult, error)
}

// RankingCollector keeps the ranking up to date, on a schedule and on demand,
// and hands every completed result to its publishers.
type RankingCollector struct {
	refresher  Refresher
	publishers []publish.Publisher
	interval   time.Duration
	logger     *slog.Logger

	onFailure func(error)

	trigger chan struct{}
	// refreshes run one at a time
	mu sync.Mutex
}

// NewRankingCollector creates a collector. interval <= 0 disables the schedule.
func NewRankingCollector(refresher Refresher, interval time.Duration, logger *slog.Logger, publishers ...publish.Publisher) *RankingCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingCollector{
		refresher:  refresher,
		publishers: publishers,
		interval:   interval,
		logger:     logger.With("component", "collector"),
		trigger:    make(chan struct{}, 1),
	}
}

// OnFailure registers a callback for refreshes that fail as a whole
func (rc *RankingCollector) OnFailure(fn func(error)) {
	rc.onFailure = fn
}

// Start refreshes immediately and then on every tick or Trigger.
// The returned function stops collection and waits for it to finish.
func (rc *RankingCollector) Start(ctx context.Context) func() {
	collectionCtx, cancelCollection := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rc.loop(collectionCtx)
	}()

	return func() {
		cancelCollection()
		wg.Wait()
	}
}

func (rc *RankingCollector) loop(ctx context.Context) {
	var tick <-chan time.Time
	if rc.interval > 0 {
		ticker := time.NewTicker(rc.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// Do an initial refresh immediately
	rc.refreshOnce(ctx)

	for {
		select {
		case <-tick:
			rc.refreshOnce(ctx)
		case <-rc.trigger:
			rc.refreshOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Trigger requests an asynchronous refresh. Requests made while one is
// already pending are coalesced.
func (rc *RankingCollector) Trigger() {
	select {
	case rc.trigger <- struct{}{}:
	default:
	}
}

// RefreshNow runs a refresh synchronously and returns its result. The
// refresh does not stop when the caller goes away: fetches are bounded by
// their own timeouts and the result is still published.
func (rc *RankingCollector) RefreshNow(ctx context.Context) (models.RankingResult, error) {
	return rc.refreshOnce(context.WithoutCancel(ctx))
}

// refreshOnce refreshes and publishes. A refresh whose context ended while it
// ran is discarded, so a shutdown never replaces the last good ranking with
// one made of cancelled fetches.
func (rc *RankingCollector) refreshOnce(ctx context.Context) (models.RankingResult, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	result, err := rc.refresher.Refresh(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		rc.logger.Warn("ranking refresh abandoned", "error", ctxErr)
		return models.RankingResult{}, ctxErr
	}
	if err != nil {
		rc.logger.Error("ranking refresh failed", "error", err)
		if rc.onFailure != nil {
			rc.onFailure(err)
		}
		return models.RankingResult{}, err
	}

	for _, p := range rc.publishers {
		if perr := p.Publish(ctx, result); perr != nil {
			rc.logger.Warn("ranking publish failed", "id", result.ID, "error", perr)
		}
	}
	return result, nil
}
