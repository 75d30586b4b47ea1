package middleware

import (
	"context"
	"time"

	"github.com/leofalp/mmchat/core/chat"
	"github.com/leofalp/mmchat/providers/ai"
)

// NewTimeoutMiddleware enforces a per-call deadline on provider calls.
//
// For Chat the deadline covers the single send. For Stream it covers the
// whole stream: cancel runs once the iterator reaches StreamEventDone, an
// error, or is abandoned, not when the first byte arrives.
//
// A caller context with a shorter deadline still wins. An expired deadline
// surfaces as a *chat.ProviderError whose Timeout reports true.
func NewTimeoutMiddleware(timeout time.Duration) chat.MiddlewareConfig {
	return chat.MiddlewareConfig{
		Send:   buildSendTimeout(timeout),
		Stream: buildStreamTimeout(timeout),
	}
}

func buildSendTimeout(timeout time.Duration) chat.Middleware {
	return func(next chat.SendFunc) chat.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next(ctx, request)
		}
	}
}

func buildStreamTimeout(timeout time.Duration) chat.StreamMiddleware {
	return func(next chat.StreamFunc) chat.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)

			stream, err := next(ctx, request)
			if err != nil {
				cancel()
				return nil, err
			}

			return wrapStreamWithCancel(stream, cancel), nil
		}
	}
}

// wrapStreamWithCancel calls cancel once the stream finishes, errors, or the
// caller stops iterating.
func wrapStreamWithCancel(stream *ai.ChatStream, cancel context.CancelFunc) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		defer cancel()

		for event, err := range stream.Iter() {
			if !yield(event, err) {
				return
			}
			if err != nil || event.Type == ai.StreamEventDone {
				return
			}
		}
	})
}
