package pgmemory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leofalp/mmchat/providers/memory"
)

// createTableSQL creates the message table. message_bytes holds the codec
// payload; role and created_at duplicate fields of the payload so the table
// can be inspected with plain SQL.
//
// The id column (BIGSERIAL) provides monotonic ordering within a
// conversation, avoiding timestamp collisions from messages appended in the
// same microsecond.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id              BIGSERIAL PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    message_bytes   BYTEA NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// createConversationIndexSQL creates the primary lookup index: all messages
// for a conversation ordered by id.
const createConversationIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (conversation_id, id)`

// EnsureSchema creates the message table and its index if they do not
// already exist. This is a convenience helper for development and
// prototyping; production deployments should manage schema changes with
// migration tooling (goose, golang-migrate, etc.).
func (m *PgMemory) EnsureSchema(ctx context.Context) error {
	tableSQL := fmt.Sprintf(createTableSQL, m.tableName)
	if _, err := m.db.Exec(ctx, tableSQL); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "schema", Err: fmt.Errorf("create table: %w", err)}
	}

	indexName := pgx.Identifier{"idx_" + m.baseName + "_conversation"}.Sanitize()
	indexSQL := fmt.Sprintf(createConversationIndexSQL, indexName, m.tableName)
	if _, err := m.db.Exec(ctx, indexSQL); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "schema", Err: fmt.Errorf("create conversation index: %w", err)}
	}

	return nil
}
