package sqlitememory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/observability"
)

const (
	backendName = "sqlite"

	// DriverName is the database/sql driver registered by go-sqlite3.
	DriverName = "sqlite3"

	defaultTableName = "chat_memory_message"
)

// SQLiteMemory implements [memory.Store] on a SQLite table with the same
// row layout as pgmemory. AUTOINCREMENT ids define append order.
type SQLiteMemory struct {
	db        *sql.DB
	tableName string // quoted, safe to interpolate
	baseName  string
	logger    *slog.Logger
}

var _ memory.Store = (*SQLiteMemory)(nil)

// Option configures optional SQLiteMemory behavior.
type Option func(*SQLiteMemory)

// WithTableName overrides the default table name ("chat_memory_message").
func WithTableName(name string) Option {
	return func(m *SQLiteMemory) {
		m.baseName = name
		m.tableName = quoteIdentifier(name)
	}
}

// WithLogger sets the logger used for rollback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *SQLiteMemory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Open opens (creating if needed) the SQLite database at path with WAL
// journaling and returns the raw handle. The parent directory is created.
// path may be a plain file name or a "file:" URI with its own query
// parameters.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(databaseFile(path)); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: err}
		}
	}

	db, err := sql.Open(DriverName, withDefaultParams(path))
	if err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: err}
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &memory.StorageError{Backend: backendName, Op: "open", Err: err}
	}
	return db, nil
}

// withDefaultParams adds WAL journaling and a busy timeout to dsn unless it
// already sets them.
func withDefaultParams(dsn string) string {
	for _, param := range []string{"_journal_mode=WAL", "_busy_timeout=5000"} {
		key, _, _ := strings.Cut(param, "=")
		if strings.Contains(dsn, key+"=") {
			continue
		}
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + param
	}
	return dsn
}

// databaseFile strips the "file:" scheme and query string from dsn.
func databaseFile(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}

// New wraps an open SQLite handle. Call [SQLiteMemory.EnsureSchema] before
// first use on a fresh database.
func New(db *sql.DB, opts ...Option) *SQLiteMemory {
	m := &SQLiteMemory{
		db:        db,
		tableName: quoteIdentifier(defaultTableName),
		baseName:  defaultTableName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureSchema creates the message table and its lookup index.
func (m *SQLiteMemory) EnsureSchema(ctx context.Context) error {
	tableSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		message_bytes   BLOB NOT NULL,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, m.tableName)
	if _, err := m.db.ExecContext(ctx, tableSQL); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "schema", Err: fmt.Errorf("create table: %w", err)}
	}

	indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (conversation_id, id)`,
		quoteIdentifier("idx_"+m.baseName+"_conversation"), m.tableName)
	if _, err := m.db.ExecContext(ctx, indexSQL); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "schema", Err: fmt.Errorf("create conversation index: %w", err)}
	}
	return nil
}

// Append inserts the batch inside one transaction.
func (m *SQLiteMemory) Append(ctx context.Context, conversationID string, messages []ai.Message) error {
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
			return fmt.Errorf("sqlitememory: append message %d: %w", i, err)
		}
		payloads[i] = payload
	}

	if err := m.appendAtomic(ctx, conversationID, messages, payloads); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "append", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryAppend,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return nil
}

func (m *SQLiteMemory) appendAtomic(ctx context.Context, conversationID string, messages []ai.Message, payloads [][]byte) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			m.logger.Debug("sqlitememory: rollback", "conversation_id", conversationID, "error", rollbackErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (conversation_id, role, message_bytes, created_at) VALUES (?, ?, ?, ?)`, m.tableName))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, message := range messages {
		if _, err := stmt.ExecContext(ctx, conversationID, string(message.Role), payloads[i], message.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get returns all messages of the conversation ordered by id.
func (m *SQLiteMemory) Get(ctx context.Context, conversationID string) ([]ai.Message, error) {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT message_bytes FROM %s WHERE conversation_id = ? ORDER BY id ASC`, m.tableName),
		conversationID)
	if err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
	}
	defer rows.Close()

	messages := []ai.Message{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
		}
		message, err := codec.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("sqlitememory: get %q: record %d: %w", conversationID, len(messages), err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, &memory.StorageError{Backend: backendName, Op: "get", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryGet,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
		observability.Int(observability.AttrMemoryMessageCount, len(messages)),
	)
	return messages, nil
}

// Clear deletes every row of the conversation.
func (m *SQLiteMemory) Clear(ctx context.Context, conversationID string) error {
	if err := memory.ValidateConversationID(conversationID); err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = ?`, m.tableName), conversationID); err != nil {
		return &memory.StorageError{Backend: backendName, Op: "clear", ConversationID: conversationID, Err: err}
	}

	observability.AddEvent(ctx, observability.EventMemoryClear,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.String(observability.AttrConversationID, conversationID),
	)
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
