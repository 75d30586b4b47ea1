package multimodal

import (
	"log/slog"

	"github.com/leofalp/mmchat/providers/ai"
)

// RequestBuilder assembles provider content blocks from stored history and
// the new user input.
type RequestBuilder struct {
	resolver     *ImageResolver
	historyMedia bool
	logger       *slog.Logger
}

// BuilderOption configures a RequestBuilder.
type BuilderOption func(*RequestBuilder)

// WithResolver overrides the image resolver.
func WithResolver(resolver *ImageResolver) BuilderOption {
	return func(b *RequestBuilder) {
		if resolver != nil {
			b.resolver = resolver
		}
	}
}

// WithHistoryMedia replays stored media of history messages as image
// entries ahead of their text. Off by default: history is sent as text.
func WithHistoryMedia(enabled bool) BuilderOption {
	return func(b *RequestBuilder) {
		b.historyMedia = enabled
	}
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *RequestBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRequestBuilder returns a builder with a default resolver.
func NewRequestBuilder(opts ...BuilderOption) *RequestBuilder {
	b := &RequestBuilder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = NewImageResolver(WithResolverLogger(b.logger))
	}
	return b
}

// Build returns one block per history message followed by the new user
// block: resolved images in order, then the text when non-empty.
func (b *RequestBuilder) Build(history []ai.Message, newText string, newImages []string) []ai.ContentBlock {
	blocks, _ := b.BuildTurn(history, newText, newImages)
	return blocks
}

// BuildTurn is Build plus the user message to persist once the turn
// completes. The message carries the text and the resolved media.
func (b *RequestBuilder) BuildTurn(history []ai.Message, newText string, newImages []string) ([]ai.ContentBlock, ai.Message) {
	blocks := make([]ai.ContentBlock, 0, len(history)+1)
	for _, message := range history {
		blocks = append(blocks, b.historyBlock(message))
	}

	userEntries := make([]ai.ContentEntry, 0, len(newImages)+1)
	media := make([]ai.MediaRef, 0, len(newImages))
	for _, image := range newImages {
		resolved := b.resolver.Resolve(image)
		userEntries = append(userEntries, ai.ImageEntry(resolved))
		media = append(media, ToMediaRef(resolved))
	}
	if newText != "" {
		userEntries = append(userEntries, ai.TextEntry(newText))
	}
	if len(userEntries) == 0 {
		b.logger.Debug("building user block without text or images")
	}

	blocks = append(blocks, ai.ContentBlock{Role: ai.RoleUser, Content: userEntries})
	return blocks, ai.NewMessage(ai.RoleUser, newText, media...)
}

func (b *RequestBuilder) historyBlock(message ai.Message) ai.ContentBlock {
	role := message.Role
	if !role.Valid() {
		role = ai.RoleUser
	}

	entries := make([]ai.ContentEntry, 0, len(message.Media)+1)
	if b.historyMedia {
		for _, ref := range message.Media {
			entries = append(entries, ai.ImageEntry(ref.Value()))
		}
	}
	entries = append(entries, ai.TextEntry(message.Text))

	return ai.ContentBlock{Role: role, Content: entries}
}
