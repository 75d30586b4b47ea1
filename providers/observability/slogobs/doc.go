// Package slogobs provides an observability.Tracer backed by log/slog, plus
// [NewLogger], [ParseFormat] and [ParseLevel] for building the process logger
// from LOG_FORMAT and LOG_LEVEL style settings.
package slogobs
