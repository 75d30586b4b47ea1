package sqlitememory

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/memory/memorytest"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T, opts ...Option) *SQLiteMemory {
	t.Helper()
	mem := New(openTestDB(t), opts...)
	if err := mem.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return mem
}

func TestSQLiteMemory_StoreSuite(t *testing.T) {
	memorytest.RunStoreTests(t, func(t *testing.T) memory.Store {
		return newTestStore(t)
	})
}

func TestSQLiteMemory_CustomTable(t *testing.T) {
	mem := newTestStore(t, WithTableName("my history"))
	ctx := context.Background()

	want := memorytest.Messages()
	if err := mem.Append(ctx, "c1", want); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got, err := mem.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	memorytest.AssertHistory(t, got, want)

	var count int
	if err := mem.db.QueryRow(`SELECT COUNT(*) FROM "my history"`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), count)
	}
}

func TestSQLiteMemory_CodecErrorWritesNothing(t *testing.T) {
	mem := newTestStore(t)
	ctx := context.Background()

	err := mem.Append(ctx, "c1", []ai.Message{
		{Role: ai.RoleUser, Text: "ok"},
		{Role: "tool", Text: "bad"},
	})
	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected *codec.Error, got %v", err)
	}

	got, err := mem.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %d", len(got))
	}
}

func TestSQLiteMemory_CorruptRowFailsRead(t *testing.T) {
	mem := newTestStore(t)
	ctx := context.Background()

	if err := mem.Append(ctx, "c1", []ai.Message{{Role: ai.RoleUser, Text: "ok"}}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := mem.db.Exec(`INSERT INTO "chat_memory_message" (conversation_id, role, message_bytes) VALUES ('c1', 'user', X'C1')`); err != nil {
		t.Fatalf("raw insert failed: %v", err)
	}

	_, err := mem.Get(ctx, "c1")
	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected *codec.Error, got %v", err)
	}
}

func TestSQLiteMemory_MissingTable(t *testing.T) {
	mem := New(openTestDB(t))

	_, err := mem.Get(context.Background(), "c1")
	var storageErr *memory.StorageError
	if !errors.As(err, &storageErr) || storageErr.Backend != "sqlite" || storageErr.Op != "get" {
		t.Fatalf("expected sqlite get StorageError, got %v", err)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := quoteIdentifier(`a"b`); got != `"a""b"` {
		t.Fatalf("unexpected quoting: %s", got)
	}
}

func TestWithDefaultParams(t *testing.T) {
	cases := map[string]string{
		"history.db":                         "history.db?_journal_mode=WAL&_busy_timeout=5000",
		"file:x.db?cache=shared":             "file:x.db?cache=shared&_journal_mode=WAL&_busy_timeout=5000",
		"x.db?_busy_timeout=100":             "x.db?_busy_timeout=100&_journal_mode=WAL",
		"x.db?_journal_mode=DELETE&mode=rwc": "x.db?_journal_mode=DELETE&mode=rwc&_busy_timeout=5000",
	}
	for in, want := range cases {
		if got := withDefaultParams(in); got != want {
			t.Errorf("withDefaultParams(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpen_URIWithQuery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := Open(context.Background(), "file:"+filepath.Join(dir, "history.db")+"?cache=shared")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mem := New(db)
	if err := mem.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := mem.Append(context.Background(), "c1", []ai.Message{ai.NewMessage(ai.RoleUser, "hi")}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var mode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected WAL journaling, got %q", mode)
	}
}
