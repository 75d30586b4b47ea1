package pgmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
)

var testTime = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

// plainQuerier hides Begin so PgMemory takes the non-transactional path.
type plainQuerier struct {
	Querier
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func mustEncode(t *testing.T, message ai.Message) []byte {
	t.Helper()
	payload, err := codec.Encode(message)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return payload
}

// TestNew_Defaults verifies that New applies the default table name.
func TestNew_Defaults(t *testing.T) {
	mem := New(newMock(t))
	if mem.tableName != defaultTableName {
		t.Fatalf("expected default table name %q, got %q", defaultTableName, mem.tableName)
	}
}

// TestNew_WithTableName verifies that WithTableName overrides the default
// and sanitizes the name via pgx.Identifier.
func TestNew_WithTableName(t *testing.T) {
	mem := New(newMock(t), WithTableName("custom_table"))

	expected := `"custom_table"`
	if mem.tableName != expected {
		t.Fatalf("expected table name %q, got %q", expected, mem.tableName)
	}
}

// TestAppend_EmptyIsNoop verifies that an empty batch touches nothing.
func TestAppend_EmptyIsNoop(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	if err := mem.Append(context.Background(), "c1", nil); err != nil {
		t.Fatalf("Append(nil) failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database call for empty batch: %v", err)
	}
}

// TestAppend_Transactional verifies that a batch runs inside one transaction
// with one INSERT per message.
func TestAppend_Transactional(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	user := ai.Message{Role: ai.RoleUser, Text: "hi", CreatedAt: testTime}
	assistant := ai.Message{Role: ai.RoleAssistant, Text: "hello", CreatedAt: testTime}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_memory_message").
		WithArgs("c1", "user", mustEncode(t, user), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_memory_message").
		WithArgs("c1", "assistant", mustEncode(t, assistant), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := mem.Append(context.Background(), "c1", []ai.Message{user, assistant}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestAppend_FailureRollsBack verifies that a failing insert rolls the whole
// batch back and surfaces a StorageError.
func TestAppend_FailureRollsBack(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	dbErr := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_memory_message").
		WithArgs("c1", "user", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_memory_message").
		WithArgs("c1", "assistant", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(dbErr)
	mock.ExpectRollback()

	err := mem.Append(context.Background(), "c1", []ai.Message{
		{Role: ai.RoleUser, Text: "hi", CreatedAt: testTime},
		{Role: ai.RoleAssistant, Text: "hello", CreatedAt: testTime},
	})

	var storageErr *memory.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *memory.StorageError, got %v", err)
	}
	if storageErr.Backend != "postgres" || storageErr.Op != "append" || !errors.Is(err, dbErr) {
		t.Errorf("unexpected storage error: %+v", storageErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestAppend_CodecErrorWritesNothing verifies that an invalid message is
// rejected before any SQL is issued.
func TestAppend_CodecErrorWritesNothing(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	err := mem.Append(context.Background(), "c1", []ai.Message{
		{Role: ai.RoleUser, Text: "ok"},
		{Role: "tool", Text: "bad"},
	})

	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected *codec.Error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database call: %v", err)
	}
}

// TestAppend_WithoutTransactions verifies the row-by-row fallback for
// executors that cannot begin a transaction.
func TestAppend_WithoutTransactions(t *testing.T) {
	mock := newMock(t)
	mem := New(plainQuerier{mock})

	mock.ExpectExec("INSERT INTO chat_memory_message").
		WithArgs("c1", "user", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_memory_message").
		WithArgs("c1", "assistant", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection lost"))

	err := mem.Append(context.Background(), "c1", []ai.Message{
		{Role: ai.RoleUser, Text: "hi", CreatedAt: testTime},
		{Role: ai.RoleAssistant, Text: "hello", CreatedAt: testTime},
	})
	var storageErr *memory.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *memory.StorageError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestGet_DecodesInOrder verifies that rows are decoded in the order the
// query returns them.
func TestGet_DecodesInOrder(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	first := ai.Message{Role: ai.RoleUser, Text: "look", CreatedAt: testTime,
		Media: []ai.MediaRef{ai.NewURLMedia("https://x/y.png")}}
	second := ai.Message{Role: ai.RoleAssistant, Text: "a cat", CreatedAt: testTime.Add(time.Second)}

	mock.ExpectQuery("SELECT message_bytes FROM chat_memory_message").
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"message_bytes"}).
			AddRow(mustEncode(t, first)).
			AddRow(mustEncode(t, second)))

	got, err := mem.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 2 || !got[0].Equal(first) || !got[1].Equal(second) {
		t.Fatalf("unexpected history: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestGet_EmptyReturnsNonNil verifies the empty-conversation contract.
func TestGet_EmptyReturnsNonNil(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	mock.ExpectQuery("SELECT message_bytes").
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"message_bytes"}))

	got, err := mem.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

// TestGet_CorruptRecordFailsRead verifies that one undecodable row fails the
// whole read with a codec error.
func TestGet_CorruptRecordFailsRead(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	mock.ExpectQuery("SELECT message_bytes").
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"message_bytes"}).
			AddRow(mustEncode(t, ai.Message{Role: ai.RoleUser, Text: "ok"})).
			AddRow([]byte{0xc1}))

	_, err := mem.Get(context.Background(), "c1")
	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected *codec.Error, got %v", err)
	}
}

// TestGet_QueryError verifies that a failing query becomes a StorageError.
func TestGet_QueryError(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	mock.ExpectQuery("SELECT message_bytes").
		WithArgs("c1").
		WillReturnError(errors.New("timeout"))

	_, err := mem.Get(context.Background(), "c1")
	var storageErr *memory.StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "get" {
		t.Fatalf("expected get StorageError, got %v", err)
	}
}

// TestClear verifies the DELETE statement.
func TestClear(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	mock.ExpectExec("DELETE FROM chat_memory_message").
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := mem.Clear(context.Background(), "c1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestCount verifies the COUNT query.
func TestCount(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	count, err := mem.Count(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 42 {
		t.Fatalf("expected 42, got %d", count)
	}
}

// TestEnsureSchema verifies that the table and index DDL are issued.
func TestEnsureSchema(t *testing.T) {
	mock := newMock(t)
	mem := New(mock, WithTableName("history"))

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "history"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_history_conversation"`).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	if err := mem.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestEmptyConversationID verifies that invalid IDs never reach the database.
func TestEmptyConversationID(t *testing.T) {
	mock := newMock(t)
	mem := New(mock)

	if err := mem.Append(context.Background(), "", []ai.Message{{Role: ai.RoleUser}}); !errors.Is(err, memory.ErrInvalidConversationID) {
		t.Fatalf("expected ErrInvalidConversationID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database call: %v", err)
	}
}
