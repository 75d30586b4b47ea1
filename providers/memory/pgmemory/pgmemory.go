package pgmemory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/observability"
)

const (
	backendName = "postgres"

	// defaultTableName is the PostgreSQL table used when no custom name is provided.
	defaultTableName = "chat_memory_message"
)

// Querier abstracts the pgx query methods needed by PgMemory.
// Both *pgxpool.Pool and pgx.Tx satisfy this interface, allowing
// callers to inject either a connection pool or a single transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxQuerier extends Querier with transaction support. *pgxpool.Pool satisfies
// this interface but pgx.Tx does not. Append runs in a transaction when the
// db implements TxQuerier and falls back to row-by-row inserts otherwise.
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgMemory implements [memory.Store] with one PostgreSQL row per message.
// Rows carry the codec bytes of the message; the id column (BIGSERIAL)
// defines append order. Thread safety is handled by the pgx pool.
type PgMemory struct {
	db        Querier
	tableName string // sanitized, safe to interpolate
	baseName  string // unquoted, used to derive index names
	logger    *slog.Logger
}

// Compile-time check: PgMemory must implement memory.Store.
var _ memory.Store = (*PgMemory)(nil)

// Option configures optional PgMemory behavior.
type Option func(*PgMemory)

// WithTableName overrides the default table name ("chat_memory_message").
// The name is sanitized via pgx.Identifier to prevent SQL injection,
// since it is interpolated into queries via fmt.Sprintf.
func WithTableName(name string) Option {
	return func(m *PgMemory) {
		m.baseName = name
		m.tableName = pgx.Identifier{name}.Sanitize()
	}
}

// WithLogger sets the logger used for rollback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *PgMemory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a PostgreSQL-backed store. The db parameter must be a
// pgx-compatible query executor (typically *pgxpool.Pool).
func New(db Querier, opts ...Option) *PgMemory {
	pgMemory := &PgMemory{
		db:        db,
		tableName: defaultTableName,
		baseName:  defaultTableName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(pgMemory)
	}
	return pgMemory
}

// Append inserts one row per message. Messages are encoded up front so a
// codec failure writes nothing. With a TxQuerier the batch is atomic;
// with a plain Querier rows already inserted stay when a later one fails.
func (m *PgMemory) Append(ctx context.Context, conversationID string, messages []ai.Message) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	payloads := make([][]byte, len(messages))
	for i, message := range messages {
		payload, err := codec.Encode(message)
		if err != nil {
			return fmt.Errorf("pgmemory: append message %d: %w", i, err)
		}
		payloads[i] = payload
	}

	query := fmt.Sprintf(`INSERT INTO %s (conversation_id, role, message_bytes, created_at)
		VALUES ($1, $2, $3, $4)`, m.tableName)

	if txDB, ok := m.db.(TxQuerier); ok {
		if err := m.appendAtomic(ctx, txDB, query, conversationID, messages, payloads); err != nil {
			return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID, Err: err}
		}
	} else {
		for i := range messages {
			if err := m.insert(ctx, m.db, query, conversationID, messages[i], payloads[i]); err != nil {
				return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID,
					Err: fmt.Errorf("message %d of %d (earlier rows kept): %w", i, len(messages), err)}
			}
		}
	}

	observability.AddEvent(ctx, observability.EventMemoryAppend,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return nil
}

// appendAtomic wraps every insert of one Append in a single transaction.
func (m *PgMemory) appendAtomic(ctx context.Context, txDB TxQuerier, query, conversationID string, messages []ai.Message, payloads [][]byte) error {
	tx, err := txDB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// Rollback after a successful commit is a no-op.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			m.logger.Debug("pgmemory: rollback", "conversation_id", conversationID, "error", rollbackErr)
		}
	}()

	for i := range messages {
		if err := m.insert(ctx, tx, query, conversationID, messages[i], payloads[i]); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *PgMemory) insert(ctx context.Context, db Querier, query, conversationID string, message ai.Message, payload []byte) error {
	_, err := db.Exec(ctx, query, conversationID, string(message.Role), payload, message.CreatedAt)
	return err
}

// Get returns all messages of the conversation in insertion order (id ASC).
func (m *PgMemory) Get(ctx context.Context, conversationID string) ([]ai.Message, error) {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT message_bytes FROM %s WHERE conversation_id = $1 ORDER BY id ASC`, m.tableName)

	rows, err := m.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, m.wrapReadError(conversationID, err)
	}

	observability.AddEvent(ctx, observability.EventMemoryGet,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return messages, nil
}

// Count returns the number of messages stored for the conversation.
func (m *PgMemory) Count(ctx context.Context, conversationID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE conversation_id = $1`, m.tableName)

	var count int
	if err := m.db.QueryRow(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, &memory.StorageError{Backend: backendName, Op: "count", ConversationID: conversationID, Err: err}
	}
	return count, nil
}

// Clear deletes all rows of the conversation.
func (m *PgMemory) Clear(ctx context.Context, conversationID string) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, m.tableName)
	if _, err := m.db.Exec(ctx, query, conversationID); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "clear", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryClear,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
	)
	return nil
}

// scanMessages decodes each message_bytes column. A record that fails to
// decode aborts the whole read. Returns an empty non-nil slice when no rows
// are present.
func scanMessages(rows pgx.Rows) ([]ai.Message, error) {
	messages := []ai.Message{}

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		message, err := codec.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(messages), err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return messages, nil
}

func (m *PgMemory) wrapReadError(conversationID string, err error) error {
	var codecErr *codec.Error
	if errors.As(err, &codecErr) {
		return fmt.Errorf("pgmemory: get %q: %w", conversationID, err)
	}
	return &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
}
