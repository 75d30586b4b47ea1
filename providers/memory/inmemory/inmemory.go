package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/observability"
)

const backendName = "inmemory"

// Store is a concurrency-safe, process-local [memory.Store]. Messages are
// kept as codec records, so every read returns fresh copies and a message
// the codec rejects is rejected here too.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][][]byte
}

// New returns an empty [Store] ready for immediate use.
func New() *Store {
	return &Store{
		conversations: make(map[string][][]byte),
	}
}

// Ensure Store implements memory.Store at compile time.
var _ memory.Store = (*Store)(nil)

// Append encodes the batch and adds it to the end of the conversation.
// Nothing is stored when any message fails to encode.
func (s *Store) Append(ctx context.Context, conversationID string, messages []ai.Message) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	records := make([][]byte, len(messages))
	for i, message := range messages {
		payload, err := codec.Encode(message)
		if err != nil {
			return fmt.Errorf("inmemory: append message %d: %w", i, err)
		}
		records[i] = payload
	}

	s.mu.Lock()
	s.conversations[conversationID] = append(s.conversations[conversationID], records...)
	total := len(s.conversations[conversationID])
	s.mu.Unlock()

	observability.AddEvent(ctx, observability.EventMemoryAppend,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, total),
	)
	return nil
}

// Get decodes the conversation in append order. The returned slice is
// always non-nil.
func (s *Store) Get(ctx context.Context, conversationID string) ([]ai.Message, error) {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := s.conversations[conversationID]
	snapshot := make([][]byte, len(records))
	copy(snapshot, records)
	s.mu.RUnlock()

	messages := make([]ai.Message, 0, len(snapshot))
	for i, payload := range snapshot {
		message, err := codec.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("inmemory: get %q: record %d: %w", conversationID, i, err)
		}
		messages = append(messages, message)
	}

	observability.AddEvent(ctx, observability.EventMemoryGet,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return messages, nil
}

// Count returns the number of messages stored for the conversation.
func (s *Store) Count(_ context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	n := len(s.conversations[conversationID])
	s.mu.RUnlock()
	return n, nil
}

// LastMessages returns up to the last n messages of the conversation.
// Returns an empty, non-nil slice when n is zero or negative.
func (s *Store) LastMessages(ctx context.Context, conversationID string, n int) ([]ai.Message, error) {
	if n <= 0 {
		return []ai.Message{}, nil
	}
	messages, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if n > len(messages) {
		n = len(messages)
	}
	return messages[len(messages)-n:], nil
}

// Clear drops the conversation. Clearing an unknown conversation is a no-op.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.conversations, conversationID)
	s.mu.Unlock()

	observability.AddEvent(ctx, observability.EventMemoryClear,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
	)
	return nil
}
