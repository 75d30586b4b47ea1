package memory

import (
	"context"

	"github.com/leofalp/mmchat/providers/ai"
)

// Store is a durable, append-only conversation history keyed by a
// caller-supplied conversation ID. A conversation exists implicitly from its
// first Append until Clear.
//
// Implementations must be safe for concurrent use on different conversation
// IDs. Concurrent writers on the same conversation must be serialized by the
// caller unless the implementation documents otherwise.
type Store interface {
	// Append adds messages to the end of the conversation in the given order.
	// An empty slice is a no-op. Either every message is durably recorded or
	// an error is returned.
	Append(ctx context.Context, conversationID string, messages []ai.Message) error

	// Get returns the whole history in append order. An unknown conversation
	// yields an empty, non-nil slice. Returned messages are fresh copies.
	Get(ctx context.Context, conversationID string) ([]ai.Message, error)

	// Clear removes every message of the conversation. Clearing an unknown
	// conversation succeeds.
	Clear(ctx context.Context, conversationID string) error
}
