package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/codec"
	"github.com/leofalp/mmchat/providers/memory/memorytest"
)

func TestStore_Suite(t *testing.T) {
	memorytest.RunStoreTests(t, func(t *testing.T) memory.Store {
		return New()
	})
}

func TestStore_Count(t *testing.T) {
	ctx := context.Background()
	m := New()
	if n, _ := m.Count(ctx, "c1"); n != 0 {
		t.Fatalf("expected empty memory")
	}

	_ = m.Append(ctx, "c1", []ai.Message{{Role: ai.RoleUser, Text: "hi"}, {Role: ai.RoleAssistant, Text: "hello"}})
	_ = m.Append(ctx, "c2", []ai.Message{{Role: ai.RoleUser, Text: "other"}})

	if n, _ := m.Count(ctx, "c1"); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
}

func TestStore_LastMessages(t *testing.T) {
	ctx := context.Background()
	m := New()
	for i := 0; i < 5; i++ {
		_ = m.Append(ctx, "c1", []ai.Message{{Role: ai.RoleUser, Text: string(rune('a' + i))}})
	}

	last, err := m.LastMessages(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("LastMessages failed: %v", err)
	}
	if len(last) != 2 || last[0].Text != "d" || last[1].Text != "e" {
		t.Fatalf("unexpected last messages: %v", last)
	}

	none, _ := m.LastMessages(ctx, "c1", 0)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice when n <= 0")
	}

	all, _ := m.LastMessages(ctx, "c1", 10)
	if len(all) != 5 {
		t.Fatalf("expected full history when n > len, got %d", len(all))
	}
}

func TestStore_RejectsInvalidRole(t *testing.T) {
	ctx := context.Background()
	m := New()

	err := m.Append(ctx, "c1", []ai.Message{{Role: ai.RoleUser, Text: "ok"}, {Role: "tool"}})
	var codecErr *codec.Error
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected *codec.Error, got %v", err)
	}
	if n, _ := m.Count(ctx, "c1"); n != 0 {
		t.Fatalf("expected no partial write, got %d messages", n)
	}
}
