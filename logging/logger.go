package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"airquality-service/config"
)

const appName = "airquality-service"

// New builds the process logger: colored text in dev, JSON in prod
func New(cfg config.Config, version string) *slog.Logger {
	return newWithWriter(os.Stdout, cfg, version)
}

func newWithWriter(w io.Writer, cfg config.Config, version string) *slog.Logger {
	if cfg.AppEnv != "prod" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
