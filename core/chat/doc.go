// Package chat orchestrates multimodal chat turns over a memory store.
//
// A turn reads the conversation history, builds the provider request with
// [multimodal.RequestBuilder], calls the provider through the middleware
// chain and, only when the call completes, appends the user message and
// the assistant answer to memory in one Append. [Service.Stream] forwards
// text deltas over a channel while accumulating them, so a streamed answer
// is stored as a single assistant message.
//
// Each invocation walks the states
//
//	Idle → Requesting → (Streaming) → Completed → Reconciled → Done
//
// and may move to Failed from any non-terminal state. Failed or cancelled
// invocations never write to memory.
//
// Example:
//
//	svc, err := chat.New(dashscope.New(), store,
//	    chat.WithMiddleware(middleware.NewTimeoutMiddleware(60*time.Second)),
//	)
//	chunks, err := svc.Stream(ctx, chat.Request{ConversationID: id, Text: "hi"})
//	for chunk := range chunks {
//	    fmt.Print(chunk.Text)
//	}
package chat
