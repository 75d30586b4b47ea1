package boltmemory

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/observability"
)

const backendName = "bolt"

var rootBucket = []byte("conversations")

// BoltMemory implements [memory.Store] on a single bbolt file. Each
// conversation is a sub-bucket of "conversations" whose keys are big-endian
// sequence numbers, so a cursor walk yields append order.
type BoltMemory struct {
	db     *bolt.DB
	ownsDB bool
}

var _ memory.Store = (*BoltMemory)(nil)

// Open opens (creating if needed) the bbolt file at path. The returned
// store owns the handle and closes it in Close.
func Open(path string) (*BoltMemory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: err}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: err}
	}
	m, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.ownsDB = true
	return m, nil
}

// New wraps an already open database and creates the root bucket.
func New(db *bolt.DB) (*BoltMemory, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "schema", Err: err}
	}
	return &BoltMemory{db: db}, nil
}

// Close releases the database when the store opened it.
func (m *BoltMemory) Close() error {
	if !m.ownsDB {
		return nil
	}
	return m.db.Close()
}

// Append writes the batch in one read-write transaction.
func (m *BoltMemory) Append(ctx context.Context, conversationID string, messages []ai.Message) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID, Err: err}
	}

	payloads := make([][]byte, len(messages))
	for i, message := range messages {
		payload, err := codec.Encode(message)
		if err != nil {
			return fmt.Errorf("boltmemory: append message %d: %w", i, err)
		}
		payloads[i] = payload
	}

	err := m.db.Update(func(tx *bolt.Tx) error {
		conv, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return err
		}
		for _, payload := range payloads {
			seq, err := conv.NextSequence()
			if err != nil {
				return err
			}
			if err := conv.Put(sequenceKey(seq), payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryAppend,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return nil
}

// Get decodes the conversation in key order.
func (m *BoltMemory) Get(ctx context.Context, conversationID string) ([]ai.Message, error) {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
	}

	messages := []ai.Message{}
	var decodeErr error
	err := m.db.View(func(tx *bolt.Tx) error {
		conv := tx.Bucket(rootBucket).Bucket([]byte(conversationID))
		if conv == nil {
			return nil
		}
		return conv.ForEach(func(_, v []byte) error {
			message, err := codec.Decode(v)
			if err != nil {
				decodeErr = fmt.Errorf("boltmemory: get %q: record %d: %w", conversationID, len(messages), err)
				return decodeErr
			}
			messages = append(messages, message)
			return nil
		})
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryGet,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return messages, nil
}

// Clear removes the conversation bucket.
func (m *BoltMemory) Clear(ctx context.Context, conversationID string) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "clear", ConversationID: conversationID, Err: err}
	}

	err := m.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		if root.Bucket([]byte(conversationID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(conversationID))
	})
	if err != nil {
		return &memory.StorageError{Backend: backendName, Op: "clear", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryClear,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
	)
	return nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
