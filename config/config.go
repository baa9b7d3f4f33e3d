package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration
type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	IQAirAPIKey          string
	OpenWeatherMapAPIKey string
	WAQIAPIKey           string

	Ranking RankingConfig
	Cache   CacheConfig
	MQTT    MQTTConfig
}

// RankingConfig controls the multi-location ranking
type RankingConfig struct {
	Locations       []string
	Concurrency     int
	RefreshInterval time.Duration
	RateLimit       RateLimitConfig
}

// RateLimitConfig paces outbound ranking requests. Disabled by default.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// CacheConfig controls provider response caching
type CacheConfig struct {
	TTL time.Duration
}

// MQTTConfig configures ranking publication. An empty broker disables it.
type MQTTConfig struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
}

// fileConfig mirrors the on-disk layout for viper
type fileConfig struct {
	AppEnv   string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`

	IQAir struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"iqair"`
	OpenWeatherMap struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"openweathermap"`
	WAQI struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"waqi"`

	Ranking struct {
		Locations       []string      `mapstructure:"locations"`
		Concurrency     int           `mapstructure:"concurrency"`
		RefreshInterval time.Duration `mapstructure:"refresh_interval"`
		RateLimit       struct {
			Enabled bool    `mapstructure:"enabled"`
			RPS     float64 `mapstructure:"rps"`
			Burst   int     `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"ranking"`

	Cache struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	MQTT struct {
		Broker   string `mapstructure:"broker"`
		Port     int    `mapstructure:"port"`
		ClientID string `mapstructure:"client_id"`
		Topic    string `mapstructure:"topic"`
	} `mapstructure:"mqtt"`
}

// envKeys are bound explicitly so env-only values reach Unmarshal
var envKeys = []string{
	"app_env", "log_level", "http_addr",
	"iqair.api_key", "openweathermap.api_key", "waqi.api_key",
	"ranking.locations", "ranking.concurrency", "ranking.refresh_interval",
	"ranking.rate_limit.enabled", "ranking.rate_limit.rps", "ranking.rate_limit.burst",
	"cache.ttl",
	"mqtt.broker", "mqtt.port", "mqtt.client_id", "mqtt.topic",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("ranking.concurrency", 5)
	v.SetDefault("ranking.refresh_interval", 10*time.Minute)
	v.SetDefault("ranking.rate_limit.enabled", false)
	v.SetDefault("ranking.rate_limit.rps", 1.0)
	v.SetDefault("ranking.rate_limit.burst", 5)
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "airquality-service")
	v.SetDefault("mqtt.topic", "airquality/ranking")
}

// Load reads config.{json,yaml,toml} from dir (if present) and applies AQS_*
// environment overrides, e.g. AQS_WAQI_API_KEY. An empty dir only uses the
// environment.
func Load(dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AQS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if dir != "" {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return fc.validate()
}

func (fc fileConfig) validate() (Config, error) {
	appEnv := strings.TrimSpace(fc.AppEnv)
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid app_env %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(fc.LogLevel)
	if err != nil {
		return Config{}, err
	}

	if fc.Ranking.Concurrency < 1 {
		return Config{}, fmt.Errorf("invalid ranking.concurrency %d (must be >= 1)", fc.Ranking.Concurrency)
	}
	if fc.Ranking.RefreshInterval < 0 {
		return Config{}, fmt.Errorf("invalid ranking.refresh_interval %s", fc.Ranking.RefreshInterval)
	}
	if fc.Ranking.RateLimit.Enabled && fc.Ranking.RateLimit.RPS <= 0 {
		return Config{}, fmt.Errorf("invalid ranking.rate_limit.rps %v (must be > 0)", fc.Ranking.RateLimit.RPS)
	}
	if fc.Cache.TTL <= 0 {
		return Config{}, fmt.Errorf("invalid cache.ttl %s (must be > 0)", fc.Cache.TTL)
	}

	locations := make([]string, 0, len(fc.Ranking.Locations))
	for _, l := range fc.Ranking.Locations {
		if l = strings.TrimSpace(l); l != "" {
			locations = append(locations, l)
		}
	}

	httpAddr := strings.TrimSpace(fc.HTTPAddr)
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	return Config{
		AppEnv:               appEnv,
		LogLevel:             level,
		HTTPAddr:             httpAddr,
		IQAirAPIKey:          strings.TrimSpace(fc.IQAir.APIKey),
		OpenWeatherMapAPIKey: strings.TrimSpace(fc.OpenWeatherMap.APIKey),
		WAQIAPIKey:           strings.TrimSpace(fc.WAQI.APIKey),
		Ranking: RankingConfig{
			Locations:       locations,
			Concurrency:     fc.Ranking.Concurrency,
			RefreshInterval: fc.Ranking.RefreshInterval,
			RateLimit: RateLimitConfig{
				Enabled: fc.Ranking.RateLimit.Enabled,
				RPS:     fc.Ranking.RateLimit.RPS,
				Burst:   fc.Ranking.RateLimit.Burst,
			},
		},
		Cache: CacheConfig{TTL: fc.Cache.TTL},
		MQTT: MQTTConfig{
			Broker:   strings.TrimSpace(fc.MQTT.Broker),
			Port:     fc.MQTT.Port,
			ClientID: fc.MQTT.ClientID,
			Topic:    fc.MQTT.Topic,
		},
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q (allowed: debug, info, warn, error)", s)
	}
}
