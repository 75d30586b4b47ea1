// Package middleware provides built-in provider middlewares for
// [chat.Service]. Each constructor returns a [chat.MiddlewareConfig] ready
// for [chat.WithMiddleware].
//
//   - [NewTimeoutMiddleware]: per-call deadline covering the whole stream.
//   - [NewLoggingMiddleware]: slog entries around every call, three levels.
//   - [NewMetricsMiddleware]: Prometheus counters and histograms.
//
// Usage:
//
//	svc, err := chat.New(provider, store,
//	    chat.WithMiddleware(
//	        middleware.NewMetricsMiddleware(middleware.NewMetrics(prometheus.DefaultRegisterer)),
//	        middleware.NewTimeoutMiddleware(60*time.Second),
//	        middleware.NewLoggingMiddleware(slog.Default(), middleware.LogLevelStandard),
//	    ),
//	)
//
// The first entry is the outermost wrapper: a request travels
// Metrics → Timeout → Logging → Provider and the response comes back in
// reverse.
//
// There is no retry middleware. A failed call surfaces to the caller and
// leaves history untouched; retrying is the caller's decision.
package middleware
