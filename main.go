package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"airquality-service/api"
	"airquality-service/cache"
	"airquality-service/collector"
	"airquality-service/config"
	"airquality-service/dashboard"
	"airquality-service/datasource"
	"airquality-service/logging"
	"airquality-service/metrics"
	"airquality-service/models"
	"airquality-service/publish"
	"airquality-service/ranking"
)

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

const (
	rankingHistory     = 50
	rankingPruneAge    = 48 * time.Hour
	mqttConnectTimeout = 5 * time.Second
)

func main() {
	// Load environment variables from .env file
	envErr := godotenv.Load()

	configDir := flag.String("config", ".", "Directory containing config.{json,yaml,toml}")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file loaded", "error", envErr)
	}

	logger.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"mqtt_broker", cfg.MQTT.Broker,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	for name, key := range map[string]string{
		"waqi.api_key":           cfg.WAQIAPIKey,
		"iqair.api_key":          cfg.IQAirAPIKey,
		"openweathermap.api_key": cfg.OpenWeatherMapAPIKey,
	} {
		if key == "" {
			logger.Warn("API key not configured", "key", name)
		}
	}

	// Providers
	waqi := datasource.NewWAQIProvider(cfg.WAQIAPIKey)
	owm := datasource.NewOpenWeatherMapProvider(cfg.OpenWeatherMapAPIKey)
	iqair := datasource.NewIQAirProvider(cfg.IQAirAPIKey)

	var feed datasource.StationFeed = waqi
	if cfg.Ranking.RateLimit.Enabled {
		feed = datasource.NewRateLimitedFeed(waqi, cfg.Ranking.RateLimit.RPS, cfg.Ranking.RateLimit.Burst)
		logger.Info("applied rate limiting to ranking feed",
			"rps", cfg.Ranking.RateLimit.RPS,
			"burst", cfg.Ranking.RateLimit.Burst,
		)
	}

	recorder := metrics.NewRecorder()

	rankingSvc := ranking.NewService(feed, ranking.ServiceConfig{
		APIKey:      cfg.WAQIAPIKey,
		Locations:   cfg.Ranking.Locations,
		Concurrency: cfg.Ranking.Concurrency,
	}, logger, recorder)
	logger.Info("ranking configured",
		"locations", len(rankingSvc.Locations()),
		"concurrency", cfg.Ranking.Concurrency,
		"refresh_interval", cfg.Ranking.RefreshInterval,
		"rate_limit", cfg.Ranking.RateLimit.Enabled,
	)

	geocoder := cache.NewCachedGeocoder(owm, cfg.Cache.TTL)
	cityAQI := cache.NewCachedCityAQISource(iqair, cfg.Cache.TTL, logger)
	if err := recorder.RegisterCache("geocode", geocoder); err != nil {
		return fmt.Errorf("register geocode cache metrics: %w", err)
	}
	if err := recorder.RegisterCache("iqair", cityAQI); err != nil {
		return fmt.Errorf("register iqair cache metrics: %w", err)
	}

	reports := dashboard.NewService(dashboard.Sources{
		Geocoder: geocoder,
		CityAQI:  cityAQI,
		Weather:  owm,
		Stations: waqi,
	}, logger)

	// Publishers
	store := api.NewRankingStore(rankingHistory)
	hub := api.NewHub(store.Latest, logger)
	refreshed := publish.PublisherFunc(func(_ context.Context, r models.RankingResult) error {
		recorder.RefreshCompleted(r.CompletedAt)
		return nil
	})
	publishers := []publish.Publisher{store, hub, refreshed}

	var mqttPub *publish.MQTTPublisher
	if cfg.MQTT.Broker != "" {
		mqttPub = publish.NewMQTTPublisher(cfg.MQTT, logger)
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := mqttPub.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			mqttPub = nil
		} else {
			publishers = append(publishers, mqttPub)
		}
	}

	rc := collector.NewRankingCollector(rankingSvc, cfg.Ranking.RefreshInterval, logger, publishers...)
	rc.OnFailure(store.RecordFailure)

	srv := api.NewServer(api.Deps{
		Store:     store,
		Refresher: rc,
		Reports:   reports,
		Stations:  waqi,
		Hub:       hub,
		Metrics:   recorder.Handler(),
		Logger:    logger,
	}, cfg.HTTPAddr)

	go hub.Run(ctx)
	stopCollector := rc.Start(ctx)
	go pruneRankings(ctx, store, logger)
	go cache.PruneEvery(ctx, cfg.Cache.TTL, logger, geocoder, cityAQI)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stopCollector()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopCollector()
	if mqttPub != nil {
		mqttPub.Disconnect()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// pruneRankings periodically drops old ranking history
func pruneRankings(ctx context.Context, store *api.RankingStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := store.PruneOldRankings(rankingPruneAge); n > 0 {
				logger.Debug("pruned ranking history", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
