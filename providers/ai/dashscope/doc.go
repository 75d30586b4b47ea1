// Package dashscope implements [ai.Provider] and [ai.StreamProvider] for
// Alibaba Cloud DashScope multimodal generation (qwen-vl models).
//
// Requests post to {base}/services/aigc/multimodal-generation/generation.
// Streaming sets the X-DashScope-SSE header and incremental_output so each
// SSE "result" event carries a text delta.
//
// Example:
//
//	provider := dashscope.New().WithAPIKey(key)
//	resp, err := provider.SendMessage(ctx, ai.ChatRequest{Messages: blocks})
package dashscope
