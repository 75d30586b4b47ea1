package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leofalp/mmchat/core/chat"
	"github.com/leofalp/mmchat/providers/ai"
)

// Metrics holds the Prometheus collectors updated by NewMetricsMiddleware.
type Metrics struct {
	Requests     *prometheus.CounterVec   // mode, status
	Duration     *prometheus.HistogramVec // mode
	Tokens       *prometheus.CounterVec   // kind
	StreamChunks prometheus.Counter
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmchat_llm_requests_total",
				Help: "Total provider calls",
			},
			[]string{"mode", "status"}, // mode: "send" or "stream"
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mmchat_llm_request_duration_seconds",
				Help:    "Provider call duration, measured to the end of the stream",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmchat_llm_tokens_total",
				Help: "Tokens reported by the provider",
			},
			[]string{"kind"}, // "prompt", "completion", "image"
		),
		StreamChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mmchat_stream_chunks_total",
				Help: "Content deltas received from streaming calls",
			},
		),
	}
}

// NewMetricsMiddleware records call counts, durations and token usage.
func NewMetricsMiddleware(metrics *Metrics) chat.MiddlewareConfig {
	return chat.MiddlewareConfig{
		Send: func(next chat.SendFunc) chat.SendFunc {
			return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
				start := time.Now()
				response, err := next(ctx, request)
				metrics.observe("send", start, err)
				if err == nil {
					metrics.addUsage(response.Usage)
				}
				return response, err
			}
		},
		Stream: func(next chat.StreamFunc) chat.StreamFunc {
			return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
				start := time.Now()
				stream, err := next(ctx, request)
				if err != nil {
					metrics.observe("stream", start, err)
					return nil, err
				}
				return metrics.wrapStream(stream, start), nil
			}
		},
	}
}

func (m *Metrics) wrapStream(stream *ai.ChatStream, start time.Time) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		for event, err := range stream.Iter() {
			if err != nil {
				m.observe("stream", start, err)
				yield(event, err)
				return
			}
			switch event.Type {
			case ai.StreamEventContent:
				m.StreamChunks.Inc()
			case ai.StreamEventUsage:
				m.addUsage(event.Usage)
			}
			if !yield(event, nil) {
				m.observeStatus("stream", start, "abandoned")
				return
			}
			if event.Type == ai.StreamEventDone {
				break
			}
		}
		m.observe("stream", start, nil)
	})
}

func (m *Metrics) observe(mode string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.observeStatus(mode, start, status)
}

func (m *Metrics) observeStatus(mode string, start time.Time, status string) {
	m.Requests.WithLabelValues(mode, status).Inc()
	m.Duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

func (m *Metrics) addUsage(usage *ai.Usage) {
	if usage == nil {
		return
	}
	m.Tokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	m.Tokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	m.Tokens.WithLabelValues("image").Add(float64(usage.ImageTokens))
}
