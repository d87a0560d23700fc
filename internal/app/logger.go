package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production always logs JSON;
// elsewhere the format follows LOG_FORMAT and includes source locations.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg == nil || !cfg.IsProduction() {
		opts.AddSource = true
	}
	if cfg != nil && (cfg.IsProduction() || cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
