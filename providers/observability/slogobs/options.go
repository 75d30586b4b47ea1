package slogobs

import (
	"log/slog"
)

// Option is a functional option for configuring the Tracer.
type Option func(*config)

// config holds the configuration for creating a Tracer.
type config struct {
	logger     *slog.Logger
	eventLevel slog.Level
}

// WithLogger routes span output through an existing logger instead of
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEventLevel sets the level used for span start, end and event records.
// Errors recorded on a span are always logged at slog.LevelError.
func WithEventLevel(level slog.Level) Option {
	return func(c *config) {
		c.eventLevel = level
	}
}

// applyOptions applies the given options to the default config.
func applyOptions(opts ...Option) *config {
	cfg := &config{eventLevel: slog.LevelDebug}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}
