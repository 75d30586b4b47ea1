// Package observability defines the tracing interfaces and semantic
// conventions shared by the memory stores, the provider adapter and the chat
// service.
//
// A [Tracer] opens [Span] values; the active span travels through a
// [context.Context] via [ContextWithSpan] and [SpanFromContext], so low-level
// helpers (HTTP calls, stores) can attach events without taking a tracer
// argument. [StartSpan] tolerates a nil tracer and hands back a no-op span.
//
// Metrics are exported with Prometheus (see core/chat/middleware) and logs go
// through log/slog; this package only covers spans.
package observability
