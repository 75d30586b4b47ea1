package dashscope

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/leofalp/mmchat/internal/utils"
	"github.com/leofalp/mmchat/providers/ai"
)

// StreamMessage sends the request with SSE enabled and incremental output,
// so every "result" event carries only the new text. An "error" event ends
// the stream with an *APIError, and a stream that closes before any
// finish_reason ends with an error wrapping io.ErrUnexpectedEOF.
func (p *Provider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	apiKey, model, err := p.prepare(ctx, request, true)
	if err != nil {
		return nil, err
	}

	httpResponse, err := utils.DoPostStream(ctx, p.client, p.baseURL+generationEndpoint, apiKey,
		requestFromGeneric(request, model, true),
		utils.HeaderOption{Key: "X-DashScope-SSE", Value: "enable"})
	if err != nil {
		return nil, wrapHTTPError(err)
	}

	sseScanner := utils.NewSSEScanner(httpResponse.Body)

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer utils.CloseWithLog(httpResponse.Body)

		var lastUsage *ai.Usage
		for {
			if ctx.Err() != nil {
				yield(ai.StreamEvent{}, ctx.Err())
				return
			}

			event, sseErr := sseScanner.Next()
			if sseErr == io.EOF {
				// The server closed the stream before sending a finish_reason.
				yield(ai.StreamEvent{}, fmt.Errorf("dashscope: stream ended without finish_reason: %w", io.ErrUnexpectedEOF))
				return
			}
			if sseErr != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("dashscope: SSE read error: %w", sseErr))
				return
			}

			if event.Event == "error" {
				yield(ai.StreamEvent{Type: ai.StreamEventError}, apiErrorFromEvent(event.Data))
				return
			}

			chunk, parseErr := utils.ParseJSONAs[response](event.Data)
			if parseErr != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("dashscope: failed to parse streaming chunk: %w", parseErr))
				return
			}
			if chunk.Code != "" {
				yield(ai.StreamEvent{Type: ai.StreamEventError}, &APIError{Code: chunk.Code, Message: chunk.Message, RequestID: chunk.RequestID})
				return
			}

			if usage := usageToGeneric(chunk.Usage); usage != nil {
				lastUsage = usage
			}
			if len(chunk.Output.Choices) == 0 {
				continue
			}

			first := chunk.Output.Choices[0]
			if text := extractText(first.Message.Content); text != "" {
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: text}, nil) {
					return
				}
			}

			if reason := normalizeFinishReason(first.FinishReason); reason != "" {
				if lastUsage != nil {
					if !yield(ai.StreamEvent{Type: ai.StreamEventUsage, Usage: lastUsage}, nil) {
						return
					}
				}
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: reason}, nil)
				return
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

func apiErrorFromEvent(data string) *APIError {
	var parsed response
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return &APIError{Code: "StreamError", Message: data}
	}
	return &APIError{Code: parsed.Code, Message: parsed.Message, RequestID: parsed.RequestID}
}
