package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log
// aggregation. Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// NewExtractionLogger returns the logrus logger used by the browser and
// extraction layers, matching the environment's verbosity.
func NewExtractionLogger() *logrus.Logger {
	logger := logrus.New()
	if strings.ToLower(os.Getenv("ENVIRONMENT")) == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// WithProvider returns a logger with provider context fields attached. Use
// this for all logging within one extraction run.
func WithProvider(providerName, country string) *slog.Logger {
	return slog.With(
		"provider", providerName,
		"country", country,
	)
}
