package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leofalp/mmchat/core/chat"
	"github.com/leofalp/mmchat/providers/ai"
)

// ========== Shared helpers ==========

func testLogger(buf *bytes.Buffer) *slog.Logger {
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler)
}

func logContains(buf *bytes.Buffer, substr string) bool {
	return strings.Contains(buf.String(), substr)
}

func userRequest(text string, images ...string) ai.ChatRequest {
	block := ai.ContentBlock{Role: ai.RoleUser}
	for _, image := range images {
		block.Content = append(block.Content, ai.ImageEntry(image))
	}
	block.Content = append(block.Content, ai.TextEntry(text))
	return ai.ChatRequest{Model: "qwen-vl-plus", Messages: []ai.ContentBlock{block}}
}

func okSend(content string) chat.SendFunc {
	return func(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{
			Model:        "qwen-vl-plus",
			Content:      content,
			FinishReason: "stop",
			Usage:        &ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, ImageTokens: 3},
		}, nil
	}
}

func failingSend(err error) chat.SendFunc {
	return func(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
		return nil, err
	}
}

// eventStream returns a StreamFunc yielding the given deltas, a usage event
// and a done event. A non-nil midErr replaces usage and done.
func eventStream(deltas []string, midErr error) chat.StreamFunc {
	return func(_ context.Context, _ ai.ChatRequest) (*ai.ChatStream, error) {
		return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
			for _, delta := range deltas {
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: delta}, nil) {
					return
				}
			}
			if midErr != nil {
				yield(ai.StreamEvent{}, midErr)
				return
			}
			usage := &ai.Usage{PromptTokens: 7, CompletionTokens: 2, TotalTokens: 9}
			if !yield(ai.StreamEvent{Type: ai.StreamEventUsage, Usage: usage}, nil) {
				return
			}
			yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: "stop"}, nil)
		}), nil
	}
}

func collectContent(t *testing.T, stream *ai.ChatStream) (string, error) {
	t.Helper()
	var sb strings.Builder
	for event, err := range stream.Iter() {
		if err != nil {
			return sb.String(), err
		}
		if event.Type == ai.StreamEventContent {
			sb.WriteString(event.Content)
		}
	}
	return sb.String(), nil
}

var errBoom = errors.New("boom")
