package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	return NewLoggerTo(os.Stdout, format, true)
}

// NewLoggerTo builds a logger writing to w in "json" or text format.
func NewLoggerTo(w io.Writer, format string, addSource bool) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: addSource}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
