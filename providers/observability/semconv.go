package observability

// Semantic conventions for observability attributes.
// Use these keys instead of ad-hoc strings so that spans emitted by the
// memory stores, the provider adapter and the chat service line up.

// --- Conversation Attributes ---

const (
	// AttrConversationID identifies the conversation a turn or memory operation belongs to
	AttrConversationID = "conversation.id"

	// AttrConversationState is the orchestrator state after a transition
	AttrConversationState = "conversation.state"

	// AttrConversationImages is the number of images attached to the new user turn
	AttrConversationImages = "conversation.images"

	// AttrConversationHistory is the number of history messages replayed into a request
	AttrConversationHistory = "conversation.history"

	// AttrConversationStreaming reports whether the turn was streamed
	AttrConversationStreaming = "conversation.streaming"
)

// --- LLM Provider Attributes ---

const (
	// AttrLLMProvider is the name of the model provider (e.g., "dashscope")
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier (e.g., "qwen-vl-plus")
	AttrLLMModel = "llm.model"

	// AttrLLMRequestID is the unique request identifier from the provider
	AttrLLMRequestID = "llm.request.id"

	// AttrLLMFinishReason is the reason the generation finished
	AttrLLMFinishReason = "llm.finish_reason"

	// AttrLLMTokensTotal is the total number of tokens
	AttrLLMTokensTotal = "llm.tokens.total" // #nosec G101 -- Not a credential, token refers to LLM tokens
)

// --- HTTP Attributes ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
	AttrHTTPDuration         = "http.request.duration"
)

// --- Memory Attributes ---

const (
	// AttrMemoryBackend is the store variant ("file", "postgres", "sqlite", "bolt")
	AttrMemoryBackend = "memory.backend"

	// AttrMemoryMessageCount is the number of messages written or read
	AttrMemoryMessageCount = "memory.message.count"

	// AttrMemoryBytes is the size of the encoded payload
	AttrMemoryBytes = "memory.bytes"
)

// --- General Attributes ---

const (
	AttrError = "error"

	// AttrDuration is the duration of an operation
	AttrDuration = "duration"
)

// --- Span Names ---

const (
	// SpanChatTurn covers one Chat or Stream invocation
	SpanChatTurn = "chat.turn"

	// SpanLLMRequest covers a single provider call
	SpanLLMRequest = "llm.request"
)

// --- Event Names ---

const (
	EventStateTransition = "conversation.transition"
	EventMemoryAppend    = "memory.append"
	EventMemoryGet       = "memory.get"
	EventMemoryClear     = "memory.clear"
	EventHTTPPrepared    = "http.request.prepared"
	EventHTTPError       = "http.request.error"
	EventHTTPResponse    = "http.response.received"
	EventStreamStarted   = "http.stream_response.started"
)
