package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Deployments set LOG_FORMAT=json for
// log ingestion; anything else gets human-readable text for local runs.
// Source locations are attached only to the JSON form.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
