package ai

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

/*
	##### CONVERSATION MESSAGES #####
*/

// MessageRole represents the role of a message; compatible with string
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // System instructions/configuration
	RoleUser      MessageRole = "user"      // End-user message
	RoleAssistant MessageRole = "assistant" // Model response
)

// Valid reports whether the role is one of the three conversation roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// MediaKind tags the variant held by a MediaRef.
type MediaKind string

const (
	MediaURL        MediaKind = "url"         // Remote reference (http/https)
	MediaInlineData MediaKind = "inline-data" // MIME type plus base64 payload
	MediaLocalPath  MediaKind = "local-path"  // Filesystem path not yet resolved
)

// MediaRef is a reference to an image attached to a message. Exactly one of
// URL, Data or Path is meaningful, selected by Kind.
type MediaRef struct {
	Kind     MediaKind `json:"kind" msgpack:"kind"`
	URL      string    `json:"url,omitempty" msgpack:"url,omitempty"`
	MimeType string    `json:"mime_type,omitempty" msgpack:"mime_type,omitempty"`
	Data     string    `json:"data,omitempty" msgpack:"data,omitempty"` // base64 text
	Path     string    `json:"path,omitempty" msgpack:"path,omitempty"`
}

// NewURLMedia references a remote image.
func NewURLMedia(url string) MediaRef {
	return MediaRef{Kind: MediaURL, URL: url}
}

// NewInlineMedia embeds base64-encoded image bytes.
func NewInlineMedia(mimeType, data string) MediaRef {
	return MediaRef{Kind: MediaInlineData, MimeType: mimeType, Data: data}
}

// NewLocalPathMedia references a file that has not been resolved yet.
func NewLocalPathMedia(path string) MediaRef {
	return MediaRef{Kind: MediaLocalPath, Path: path}
}

// Value returns the string a provider would receive for this reference:
// the URL, a data URI, or the raw path.
func (m MediaRef) Value() string {
	switch m.Kind {
	case MediaURL:
		return m.URL
	case MediaInlineData:
		return fmt.Sprintf("data:%s;base64,%s", m.MimeType, m.Data)
	default:
		return m.Path
	}
}

// Message is one turn of a conversation. Once appended to a memory store a
// message is never mutated; stores hand back independent copies.
type Message struct {
	Role      MessageRole `json:"role" msgpack:"role"`
	Text      string      `json:"text,omitempty" msgpack:"text"`
	Media     []MediaRef  `json:"media,omitempty" msgpack:"media,omitempty"`
	CreatedAt time.Time   `json:"created_at" msgpack:"created_at"`
}

// NewMessage builds a message stamped with the current UTC time. The
// monotonic clock reading is stripped so the value survives serialization
// unchanged.
func NewMessage(role MessageRole, text string, media ...MediaRef) Message {
	return Message{
		Role:      role,
		Text:      text,
		Media:     slices.Clone(media),
		CreatedAt: time.Now().UTC().Round(0),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	out.Media = slices.Clone(m.Media)
	return out
}

// Equal reports whether two messages carry the same content. A nil media
// list equals an empty one and timestamps are compared with time.Equal.
func (m Message) Equal(other Message) bool {
	if m.Role != other.Role || m.Text != other.Text || !m.CreatedAt.Equal(other.CreatedAt) {
		return false
	}
	if len(m.Media) != len(other.Media) {
		return false
	}
	for i := range m.Media {
		if m.Media[i] != other.Media[i] {
			return false
		}
	}
	return true
}

/*
	##### PROVIDER INPUT #####
*/

// ContentEntry is one element of a ContentBlock: either a text fragment or an
// image (URL or data URI). It marshals to {"text": ...} or {"image": ...}.
type ContentEntry struct {
	Text  string
	Image string
}

// TextEntry returns a text content entry.
func TextEntry(text string) ContentEntry {
	return ContentEntry{Text: text}
}

// ImageEntry returns an image content entry.
func ImageEntry(image string) ContentEntry {
	return ContentEntry{Image: image}
}

// IsImage reports whether the entry carries an image.
func (e ContentEntry) IsImage() bool {
	return e.Image != ""
}

// MarshalJSON emits exactly one key so that an empty text stays {"text":""}.
func (e ContentEntry) MarshalJSON() ([]byte, error) {
	if e.IsImage() {
		return json.Marshal(map[string]string{"image": e.Image})
	}
	return json.Marshal(map[string]string{"text": e.Text})
}

// UnmarshalJSON accepts {"text": ...} or {"image": ...}.
func (e *ContentEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Text = raw["text"]
	e.Image = raw["image"]
	return nil
}

// ContentBlock is one role-tagged message of a provider request.
type ContentBlock struct {
	Role    MessageRole    `json:"role"`
	Content []ContentEntry `json:"content"`
}

// ChatRequest represents a request to send a multimodal conversation
type ChatRequest struct {
	Model            string            `json:"model,omitempty"`             // Model name or identifier
	Messages         []ContentBlock    `json:"messages"`                    // History followed by the new user block
	GenerationConfig *GenerationConfig `json:"generation_config,omitempty"` // Optional generation configuration

	// APIKey, when set, overrides the provider's configured key for this call.
	APIKey string `json:"-"`
}

type GenerationConfig struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`  // Optional max tokens for the response
	Temperature float32 `json:"temperature,omitempty"` // Sampling temperature. Higher => more random; lower => more deterministic.
	TopP        float32 `json:"top_p,omitempty"`       // Nucleus (top-p) sampling [0..1].
}

/*
	##### PROVIDER OUTPUT #####
*/

type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
	ImageTokens      int `json:"image_tokens,omitempty"` // Tokens billed for image inputs
}

// ChatResponse represents the completed answer of a model call
type ChatResponse struct {
	Id           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}
