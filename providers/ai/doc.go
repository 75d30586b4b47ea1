// Package ai defines the shared, provider-agnostic types used across the
// conversation memory and the model providers.
//
// [Message] is the unit of conversation history: a role, text and an ordered
// list of [MediaRef] image references. Provider requests are built from
// role-tagged [ContentBlock] values whose entries are either text or an image
// (URL or data URI).
//
// The two central interfaces are [Provider] for synchronous completions and
// [StreamProvider] for SSE-based streaming responses. For real-time streaming,
// [ChatStream] and [StreamEvent] carry incremental deltas to the caller.
package ai
