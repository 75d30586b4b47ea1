// Package memorytest holds the behavioral test suite every [memory.Store]
// implementation must pass. Backend packages call [RunStoreTests] from their
// own tests, which keeps the variants observably equivalent.
package memorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
)

// Factory returns a fresh, empty store. Cleanup should be registered on t.
type Factory func(t *testing.T) memory.Store

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)

// Messages returns a deterministic history covering every role, empty text
// and each media variant.
func Messages() []ai.Message {
	return []ai.Message{
		{Role: ai.RoleSystem, Text: "You are a helpful assistant.", CreatedAt: baseTime},
		{Role: ai.RoleUser, Text: "Describe this", CreatedAt: baseTime.Add(time.Second),
			Media: []ai.MediaRef{ai.NewURLMedia("https://x/y.png"), ai.NewInlineMedia("image/jpeg", "/9j/4AAQ")}},
		{Role: ai.RoleAssistant, Text: "", CreatedAt: baseTime.Add(2 * time.Second)},
		{Role: ai.RoleUser, Text: "and this path", CreatedAt: baseTime.Add(3 * time.Second),
			Media: []ai.MediaRef{ai.NewLocalPathMedia("/missing.png")}},
	}
}

// AssertHistory fails the test unless got equals want message by message.
func AssertHistory(t *testing.T, got, want []ai.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("message %d mismatch:\n got: %+v\nwant: %+v", i, got[i], want[i])
		}
	}
}

// RunStoreTests runs the shared suite against stores built by newStore.
func RunStoreTests(t *testing.T, newStore Factory) {
	t.Run("GetUnknownIsEmpty", func(t *testing.T) {
		store := newStore(t)
		got, err := store.Get(context.Background(), "never-written")
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("AppendThenGetPreservesOrder", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		messages := Messages()

		if err := store.Append(ctx, "c1", messages[:2]); err != nil {
			t.Fatalf("first Append failed: %v", err)
		}
		if err := store.Append(ctx, "c1", messages[2:]); err != nil {
			t.Fatalf("second Append failed: %v", err)
		}

		got, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		AssertHistory(t, got, messages)
	})

	t.Run("SingleUserMessage", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.Append(ctx, "c1", []ai.Message{{Role: ai.RoleUser, Text: "hi"}}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		got, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 1 || got[0].Role != ai.RoleUser || got[0].Text != "hi" {
			t.Fatalf("unexpected history: %+v", got)
		}
	})

	t.Run("BatchesKeepRoleOrder", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.Append(ctx, "c2", []ai.Message{{Role: ai.RoleUser}, {Role: ai.RoleAssistant}}); err != nil {
			t.Fatalf("first Append failed: %v", err)
		}
		if err := store.Append(ctx, "c2", []ai.Message{{Role: ai.RoleUser}}); err != nil {
			t.Fatalf("second Append failed: %v", err)
		}
		got, err := store.Get(ctx, "c2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		want := []ai.MessageRole{ai.RoleUser, ai.RoleAssistant, ai.RoleUser}
		if len(got) != len(want) {
			t.Fatalf("expected %d messages, got %d", len(want), len(got))
		}
		for i, role := range want {
			if got[i].Role != role {
				t.Fatalf("message %d: expected role %s, got %s", i, role, got[i].Role)
			}
		}
	})

	t.Run("EmptyAppendIsNoop", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.Append(ctx, "c1", nil); err != nil {
			t.Fatalf("Append(nil) failed: %v", err)
		}
		if err := store.Append(ctx, "c1", []ai.Message{}); err != nil {
			t.Fatalf("Append(empty) failed: %v", err)
		}
		got, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no messages, got %d", len(got))
		}
	})

	t.Run("ClearIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.Append(ctx, "c1", Messages()); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := store.Clear(ctx, "c1"); err != nil {
				t.Fatalf("Clear #%d failed: %v", i+1, err)
			}
		}
		if err := store.Clear(ctx, "never-written"); err != nil {
			t.Fatalf("Clear of unknown conversation failed: %v", err)
		}
		got, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty history after Clear, got %d", len(got))
		}

		// The conversation is implicitly recreated by the next Append.
		if err := store.Append(ctx, "c1", Messages()[:1]); err != nil {
			t.Fatalf("Append after Clear failed: %v", err)
		}
		got, err = store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		AssertHistory(t, got, Messages()[:1])
	})

	t.Run("ConversationsAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		messages := Messages()

		if err := store.Append(ctx, "a", messages[:1]); err != nil {
			t.Fatalf("Append a failed: %v", err)
		}
		if err := store.Append(ctx, "b", messages[1:3]); err != nil {
			t.Fatalf("Append b failed: %v", err)
		}
		if err := store.Clear(ctx, "a"); err != nil {
			t.Fatalf("Clear a failed: %v", err)
		}

		got, err := store.Get(ctx, "b")
		if err != nil {
			t.Fatalf("Get b failed: %v", err)
		}
		AssertHistory(t, got, messages[1:3])
	})

	t.Run("ReturnedMessagesAreCopies", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		messages := Messages()

		if err := store.Append(ctx, "c1", messages); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		first, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		first[0].Text = "mutated"
		first[1].Media[0].URL = "mutated"

		second, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		AssertHistory(t, second, messages)
	})

	t.Run("CallerSliceIsNotRetained", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		messages := Messages()

		if err := store.Append(ctx, "c1", messages); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		messages[0].Text = "mutated after append"
		messages[1].Media[0].URL = "mutated"

		got, err := store.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		AssertHistory(t, got, Messages())
	})

	t.Run("EmptyConversationIDIsRejected", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		if err := store.Append(ctx, "", Messages()[:1]); !errors.Is(err, memory.ErrInvalidConversationID) {
			t.Errorf("Append: expected ErrInvalidConversationID, got %v", err)
		}
		if _, err := store.Get(ctx, ""); !errors.Is(err, memory.ErrInvalidConversationID) {
			t.Errorf("Get: expected ErrInvalidConversationID, got %v", err)
		}
		if err := store.Clear(ctx, ""); !errors.Is(err, memory.ErrInvalidConversationID) {
			t.Errorf("Clear: expected ErrInvalidConversationID, got %v", err)
		}
	})

	t.Run("ConcurrentConversations", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		const conversations = 8
		const turns = 5

		var wg sync.WaitGroup
		errs := make(chan error, conversations)
		for c := 0; c < conversations; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				id := fmt.Sprintf("conv-%d", c)
				for i := 0; i < turns; i++ {
					turn := []ai.Message{
						{Role: ai.RoleUser, Text: fmt.Sprintf("q%d", i), CreatedAt: baseTime},
						{Role: ai.RoleAssistant, Text: fmt.Sprintf("a%d", i), CreatedAt: baseTime},
					}
					if err := store.Append(ctx, id, turn); err != nil {
						errs <- err
						return
					}
				}
			}(c)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Append failed: %v", err)
		}

		for c := 0; c < conversations; c++ {
			got, err := store.Get(ctx, fmt.Sprintf("conv-%d", c))
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(got) != 2*turns {
				t.Fatalf("conversation %d: expected %d messages, got %d", c, 2*turns, len(got))
			}
			for i := 0; i < turns; i++ {
				if got[2*i].Text != fmt.Sprintf("q%d", i) || got[2*i+1].Text != fmt.Sprintf("a%d", i) {
					t.Fatalf("conversation %d: turn %d out of order: %+v", c, i, got[2*i:2*i+2])
				}
			}
		}
	})
}
