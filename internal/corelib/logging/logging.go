// Package logging initializes the process-wide slog logger, grounded on the
// reference fleet's libs/go/core/logging: JSON vs text handler toggled by an
// environment variable, level likewise, service name attached to every
// record.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the default slog logger for service and returns it. JSON
// output is used when WORKGRAPH_JSON_LOG is "1"/"true"/"json"; otherwise
// text. Level comes from WORKGRAPH_LOG_LEVEL (debug/info/warn/error,
// default info).
func Init(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("WORKGRAPH_JSON_LOG"))
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	var handler slog.Handler
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", mode == "1" || mode == "true" || mode == "json")
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("WORKGRAPH_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
