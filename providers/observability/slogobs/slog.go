package slogobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leofalp/mmchat/providers/observability"
)

// Tracer implements observability.Tracer by writing span lifecycle records
// to a slog.Logger.
type Tracer struct {
	logger     *slog.Logger
	eventLevel slog.Level
}

// Ensure Tracer implements observability.Tracer
var _ observability.Tracer = (*Tracer)(nil)

// New creates a slog-backed tracer.
//
// Example usage:
//
//	tracer := slogobs.New(slogobs.WithLogger(logger))
//	service := chat.New(provider, store, chat.WithTracer(tracer))
func New(opts ...Option) *Tracer {
	cfg := applyOptions(opts...)
	return &Tracer{logger: cfg.logger, eventLevel: cfg.eventLevel}
}

// StartSpan begins a named span and logs its start. The span's End method
// logs the elapsed duration along with every attribute gathered meanwhile.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &slogSpan{
		name:       name,
		startTime:  time.Now(),
		logger:     t.logger,
		eventLevel: t.eventLevel,
		attrs:      append([]observability.Attribute(nil), attrs...),
	}

	logAttrs := []slog.Attr{
		slog.String("span", name),
		slog.String("event", "span.start"),
	}
	logAttrs = appendAttrs(logAttrs, attrs)
	t.logger.LogAttrs(ctx, t.eventLevel, "Span started", logAttrs...)

	return ctx, span
}

type slogSpan struct {
	name       string
	startTime  time.Time
	logger     *slog.Logger
	eventLevel slog.Level

	mu     sync.Mutex
	attrs  []observability.Attribute
	status observability.StatusCode
	ended  bool
}

// End logs the span end event once; later calls are ignored.
func (s *slogSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	logAttrs := []slog.Attr{
		slog.String("span", s.name),
		slog.String("event", "span.end"),
		slog.String("status", s.status.String()),
		slog.Duration("duration", time.Since(s.startTime)),
	}
	logAttrs = appendAttrs(logAttrs, s.attrs)
	s.logger.LogAttrs(context.Background(), s.eventLevel, "Span ended", logAttrs...)
}

// SetAttributes appends the provided attributes to the span's attribute list.
func (s *slogSpan) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

// SetStatus records the final status of the span.
func (s *slogSpan) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = code
	if description != "" {
		s.attrs = append(s.attrs, observability.String("status_description", description))
	}
}

// RecordError logs err at error level and keeps it as a span attribute.
func (s *slogSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attrs = append(s.attrs, observability.Error(err))
	s.logger.LogAttrs(context.Background(), slog.LevelError, "Span error",
		slog.String("span", s.name),
		slog.String("error", err.Error()),
	)
}

// AddEvent logs a named event on the span's timeline.
func (s *slogSpan) AddEvent(name string, attrs ...observability.Attribute) {
	logAttrs := []slog.Attr{
		slog.String("span", s.name),
		slog.String("event", name),
	}
	logAttrs = appendAttrs(logAttrs, attrs)
	s.logger.LogAttrs(context.Background(), s.eventLevel, "Span event", logAttrs...)
}

func appendAttrs(dst []slog.Attr, attrs []observability.Attribute) []slog.Attr {
	for _, attr := range attrs {
		dst = append(dst, slog.Any(attr.Key, attr.Value))
	}
	return dst
}
