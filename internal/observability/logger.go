// Package observability sets up logging shared by all services.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fushimori/lakomka/internal/config"
)

// NewLogger builds a JSON slog.Logger at the configured level, tagged with
// the application, its version and the service name, and installs it as the
// default logger.
func NewLogger(c config.Log, app config.App, service string) *slog.Logger {
	return newLogger(os.Stdout, c, app, service)
}

func newLogger(w io.Writer, c config.Log, app config.App, service string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(c.Level)}))
	if app.Name != "" {
		logger = logger.With("app", app.Name)
	}
	if app.Version != "" {
		logger = logger.With("version", app.Version)
	}
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
