package ai

import (
	"encoding/json"
	"testing"
	"time"
)

// TestMessageRole_Valid covers the three conversation roles and a few
// values that must be rejected.
func TestMessageRole_Valid(t *testing.T) {
	tests := []struct {
		role MessageRole
		want bool
	}{
		{RoleSystem, true},
		{RoleUser, true},
		{RoleAssistant, true},
		{"tool", false},
		{"", false},
		{"USER", false},
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("MessageRole(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

// TestMediaRef_Value verifies the provider-facing string of every variant.
func TestMediaRef_Value(t *testing.T) {
	tests := []struct {
		name string
		ref  MediaRef
		want string
	}{
		{"url", NewURLMedia("https://x/y.png"), "https://x/y.png"},
		{"inline", NewInlineMedia("image/png", "AAEC"), "data:image/png;base64,AAEC"},
		{"local path", NewLocalPathMedia("/tmp/cat.jpg"), "/tmp/cat.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.Value(); got != tt.want {
				t.Errorf("Value() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestNewMessage_CopiesMediaAndStampsTime verifies that NewMessage does not
// alias the caller's media slice and records a UTC timestamp.
func TestNewMessage_CopiesMediaAndStampsTime(t *testing.T) {
	media := []MediaRef{NewURLMedia("https://x/a.png")}
	before := time.Now().Add(-time.Second)

	msg := NewMessage(RoleUser, "look", media...)
	media[0].URL = "changed"

	if msg.Media[0].URL != "https://x/a.png" {
		t.Fatalf("expected media to be copied, got %q", msg.Media[0].URL)
	}
	if msg.CreatedAt.Before(before) {
		t.Fatalf("expected a current timestamp, got %v", msg.CreatedAt)
	}
	if msg.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", msg.CreatedAt.Location())
	}
}

// TestMessage_CloneIsIndependent verifies that mutating a clone leaves the
// original untouched.
func TestMessage_CloneIsIndependent(t *testing.T) {
	original := NewMessage(RoleUser, "hi", NewURLMedia("https://x/a.png"))
	clone := original.Clone()
	clone.Media[0].URL = "https://x/b.png"
	clone.Text = "bye"

	if original.Media[0].URL != "https://x/a.png" || original.Text != "hi" {
		t.Fatalf("original was mutated through clone: %+v", original)
	}
}

// TestMessage_Equal checks the semantic comparison rules.
func TestMessage_Equal(t *testing.T) {
	stamp := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	base := Message{Role: RoleUser, Text: "hi", CreatedAt: stamp}

	withEmptyMedia := base
	withEmptyMedia.Media = []MediaRef{}
	if !base.Equal(withEmptyMedia) {
		t.Error("expected nil and empty media to compare equal")
	}

	otherZone := base
	otherZone.CreatedAt = stamp.In(time.FixedZone("X", 3600))
	if !base.Equal(otherZone) {
		t.Error("expected the same instant in another zone to compare equal")
	}

	otherText := base
	otherText.Text = "hello"
	if base.Equal(otherText) {
		t.Error("expected different text to compare unequal")
	}

	withMedia := base
	withMedia.Media = []MediaRef{NewURLMedia("https://x/a.png")}
	if base.Equal(withMedia) {
		t.Error("expected different media to compare unequal")
	}
}

// TestContentEntry_JSON verifies the single-key wire shape of content entries.
func TestContentEntry_JSON(t *testing.T) {
	block := ContentBlock{
		Role:    RoleUser,
		Content: []ContentEntry{ImageEntry("https://x/y.png"), TextEntry("")},
	}

	encoded, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	want := `{"role":"user","content":[{"image":"https://x/y.png"},{"text":""}]}`
	if string(encoded) != want {
		t.Fatalf("unexpected JSON:\n got: %s\nwant: %s", encoded, want)
	}

	var decoded ContentBlock
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.Content[0].IsImage() || decoded.Content[1].IsImage() {
		t.Fatalf("unexpected decoded entries: %+v", decoded.Content)
	}
}
