package dashscope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leofalp/mmchat/providers/ai"
)

/*
	##### REQUEST #####
*/

type request struct {
	Model      string      `json:"model"`
	Input      input       `json:"input"`
	Parameters *parameters `json:"parameters,omitempty"`
}

type input struct {
	Messages []message `json:"messages"`
}

type message struct {
	Role    string            `json:"role"`
	Content []ai.ContentEntry `json:"content"`
}

type parameters struct {
	IncrementalOutput bool    `json:"incremental_output,omitempty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	Temperature       float32 `json:"temperature,omitempty"`
	TopP              float32 `json:"top_p,omitempty"`
}

/*
	##### RESPONSE #####
*/

type response struct {
	RequestID string `json:"request_id"`
	Output    output `json:"output"`
	Usage     *usage `json:"usage,omitempty"`

	// Populated on error bodies and error stream events.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type output struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	FinishReason string        `json:"finish_reason"`
	Message      choiceMessage `json:"message"`
}

type choiceMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens,omitempty"`
	ImageTokens  int `json:"image_tokens,omitempty"`
}

// APIError is an error reported by DashScope, either as a non-2xx body or
// as an "error" stream event.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dashscope: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("dashscope: %s: %s", e.Code, e.Message)
}

/*
	##### CONVERSION #####
*/

func requestFromGeneric(req ai.ChatRequest, model string, stream bool) request {
	messages := make([]message, 0, len(req.Messages))
	for _, block := range req.Messages {
		content := block.Content
		if content == nil {
			content = []ai.ContentEntry{}
		}
		messages = append(messages, message{Role: string(block.Role), Content: content})
	}

	var params *parameters
	if stream || req.GenerationConfig != nil {
		params = &parameters{IncrementalOutput: stream}
		if cfg := req.GenerationConfig; cfg != nil {
			params.MaxTokens = cfg.MaxTokens
			params.Temperature = cfg.Temperature
			params.TopP = cfg.TopP
		}
	}

	return request{
		Model:      model,
		Input:      input{Messages: messages},
		Parameters: params,
	}
}

func responseToGeneric(resp response, model string) *ai.ChatResponse {
	out := &ai.ChatResponse{
		Id:    resp.RequestID,
		Model: model,
		Usage: usageToGeneric(resp.Usage),
	}
	if len(resp.Output.Choices) > 0 {
		first := resp.Output.Choices[0]
		out.Content = extractText(first.Message.Content)
		out.FinishReason = normalizeFinishReason(first.FinishReason)
	}
	return out
}

func usageToGeneric(u *usage) *ai.Usage {
	if u == nil {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return &ai.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      total,
		ImageTokens:      u.ImageTokens,
	}
}

// extractText reads message content, which is either a list of
// {"text": ...} entries or a plain string. Text entries are concatenated;
// anything else yields "".
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err == nil {
		var sb strings.Builder
		for _, entry := range entries {
			if text, ok := entry["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return ""
}

// normalizeFinishReason maps the literal "null" sent on intermediate
// chunks to the empty string.
func normalizeFinishReason(reason string) string {
	if reason == "null" {
		return ""
	}
	return reason
}

func apiErrorFromBody(statusCode int, body string) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Message: body}
	var parsed response
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && (parsed.Code != "" || parsed.Message != "") {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		apiErr.RequestID = parsed.RequestID
	}
	return apiErr
}
