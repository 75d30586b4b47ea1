package memory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConversationID is returned for IDs a store cannot key on.
var ErrInvalidConversationID = errors.New("invalid conversation id")

// StorageError reports an I/O or database failure in a store. Err is the
// underlying cause and is reachable through errors.Is / errors.As.
type StorageError struct {
	Backend        string // "file", "postgres", "sqlite", "bolt", "inmemory"
	Op             string // "append", "get", "clear", "schema"
	ConversationID string
	Err            error
}

func (e *StorageError) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("%s memory: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s memory: %s %q: %v", e.Backend, e.Op, e.ConversationID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidateConversationID rejects the empty ID, which every backend refuses.
func ValidateConversationID(conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidConversationID)
	}
	return nil
}
