// Package logger centralizes slog setup so every package logs with the same
// level and format. Level and format are controlled via LOG_LEVEL and
// LOG_FORMAT environment variables.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// defaultLogger is reused process-wide to keep output consistent.
var defaultLogger *slog.Logger

// Setup initializes the default logger. Output goes to standard error;
// LOG_FORMAT=json switches from the text handler to JSON.
func Setup() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	defaultLogger = slog.New(h)
	return defaultLogger
}

// L returns the default logger, initializing it on first use.
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
