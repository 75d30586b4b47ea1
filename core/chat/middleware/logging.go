package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/leofalp/mmchat/core/chat"
	"github.com/leofalp/mmchat/internal/utils"
	"github.com/leofalp/mmchat/providers/ai"
)

// LogLevel controls how much detail the logging middleware emits per call.
type LogLevel int

const (
	// LogLevelMinimal logs the model, duration and token counts.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds the block count, image count and finish reason.
	LogLevelStandard

	// LogLevelVerbose adds the new user text and the response text, each
	// truncated to 500 characters.
	//
	// WARNING: do not use in production. Prompts and answers may contain
	// personal data.
	LogLevelVerbose
)

const truncateLen = 500

// ParseLogLevel maps "minimal", "standard" or "verbose" to a LogLevel,
// defaulting to LogLevelStandard.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return LogLevelMinimal
	case "verbose":
		return LogLevelVerbose
	default:
		return LogLevelStandard
	}
}

// NewLoggingMiddleware emits structured slog entries before and after every
// provider call. For streams the completion entry is written once the
// iterator finishes.
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) chat.MiddlewareConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return chat.MiddlewareConfig{
		Send:   buildSendLogging(logger, level),
		Stream: buildStreamLogging(logger, level),
	}
}

func buildSendLogging(logger *slog.Logger, level LogLevel) chat.Middleware {
	return func(next chat.SendFunc) chat.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			logger.InfoContext(ctx, "llm send", buildRequestAttrs(request, level)...)

			start := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "llm send failed",
					slog.String("model", request.Model),
					slog.Duration("duration", elapsed),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "llm send completed", buildResponseAttrs(response, elapsed, level)...)
			return response, nil
		}
	}
}

func buildStreamLogging(logger *slog.Logger, level LogLevel) chat.StreamMiddleware {
	return func(next chat.StreamFunc) chat.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			logger.InfoContext(ctx, "llm stream", buildRequestAttrs(request, level)...)

			start := time.Now()
			stream, err := next(ctx, request)
			if err != nil {
				logger.ErrorContext(ctx, "llm stream failed",
					slog.String("model", request.Model),
					slog.Duration("duration", time.Since(start)),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			return wrapStreamWithLogging(ctx, stream, logger, request.Model, level, start), nil
		}
	}
}

func wrapStreamWithLogging(ctx context.Context, stream *ai.ChatStream, logger *slog.Logger, model string, level LogLevel, start time.Time) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		var finishReason string
		var usage *ai.Usage
		var content strings.Builder
		chunks := 0

		for event, err := range stream.Iter() {
			if err != nil {
				logger.ErrorContext(ctx, "llm stream failed",
					slog.String("model", model),
					slog.Duration("duration", time.Since(start)),
					slog.Int("chunks", chunks),
					slog.String("error", err.Error()),
				)
				yield(event, err)
				return
			}

			switch event.Type {
			case ai.StreamEventContent:
				chunks++
				if level >= LogLevelVerbose {
					content.WriteString(event.Content)
				}
			case ai.StreamEventUsage:
				usage = event.Usage
			case ai.StreamEventDone:
				finishReason = event.FinishReason
			}

			if !yield(event, nil) {
				logger.InfoContext(ctx, "llm stream abandoned",
					slog.String("model", model),
					slog.Duration("duration", time.Since(start)),
					slog.Int("chunks", chunks),
				)
				return
			}
			if event.Type == ai.StreamEventDone {
				break
			}
		}

		attrs := []any{
			slog.String("model", model),
			slog.Duration("duration", time.Since(start)),
			slog.Int("chunks", chunks),
		}
		if level >= LogLevelStandard && finishReason != "" {
			attrs = append(attrs, slog.String("finish_reason", finishReason))
		}
		if usage != nil {
			attrs = append(attrs, usageAttrs(usage)...)
		}
		if level >= LogLevelVerbose && content.Len() > 0 {
			attrs = append(attrs, slog.String("response_content", utils.TruncateString(content.String(), truncateLen)))
		}
		logger.InfoContext(ctx, "llm stream completed", attrs...)
	})
}

func buildRequestAttrs(request ai.ChatRequest, level LogLevel) []any {
	attrs := []any{slog.String("model", request.Model)}

	if level >= LogLevelStandard {
		attrs = append(attrs,
			slog.Int("block_count", len(request.Messages)),
			slog.Int("image_count", countImages(request)),
		)
	}

	if level >= LogLevelVerbose && len(request.Messages) > 0 {
		last := request.Messages[len(request.Messages)-1]
		attrs = append(attrs, slog.String("user_text", utils.TruncateString(blockText(last), truncateLen)))
	}
	return attrs
}

func buildResponseAttrs(response *ai.ChatResponse, elapsed time.Duration, level LogLevel) []any {
	attrs := []any{
		slog.String("model", response.Model),
		slog.Duration("duration", elapsed),
	}
	if response.Usage != nil {
		attrs = append(attrs, usageAttrs(response.Usage)...)
	}
	if level >= LogLevelStandard && response.FinishReason != "" {
		attrs = append(attrs, slog.String("finish_reason", response.FinishReason))
	}
	if level >= LogLevelVerbose && response.Content != "" {
		attrs = append(attrs, slog.String("response_content", utils.TruncateString(response.Content, truncateLen)))
	}
	return attrs
}

func usageAttrs(usage *ai.Usage) []any {
	return []any{
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Int("total_tokens", usage.TotalTokens),
	}
}

func countImages(request ai.ChatRequest) int {
	n := 0
	for _, block := range request.Messages {
		for _, entry := range block.Content {
			if entry.IsImage() {
				n++
			}
		}
	}
	return n
}

func blockText(block ai.ContentBlock) string {
	var sb strings.Builder
	for _, entry := range block.Content {
		if !entry.IsImage() {
			sb.WriteString(entry.Text)
		}
	}
	return sb.String()
}
