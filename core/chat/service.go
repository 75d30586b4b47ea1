package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leofalp/mmchat/core/multimodal"
	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/observability"
)

// DefaultStreamBuffer is the chunk channel capacity used by Stream.
const DefaultStreamBuffer = 16

// Request is one user turn.
type Request struct {
	ConversationID string
	Text           string
	Images         []string // URLs, data URIs or local paths

	// Model overrides the service model for this call.
	Model string
}

// Chunk is one element of a Stream. Exactly one of Text, Err or Done is
// meaningful. Done is sent after the turn has been written to memory.
type Chunk struct {
	Text string
	Err  error
	Done bool
}

// Service runs chat turns against a provider and keeps the conversation in
// a memory store. Each completed turn is appended exactly once as a
// [user, assistant] pair; failed or cancelled turns leave history
// untouched.
type Service struct {
	provider ai.Provider
	store    memory.Store
	builder  *multimodal.RequestBuilder
	keys     KeyResolver

	model        string
	streamBuffer int
	middlewares  []MiddlewareConfig
	sendChain    SendFunc
	streamChain  StreamFunc

	tracer   observability.Tracer
	logger   *slog.Logger
	observer func(Transition)
}

// Option configures a Service.
type Option func(*Service)

// WithModel sets the model used when a Request names none. When both are
// empty the provider default applies.
func WithModel(model string) Option {
	return func(s *Service) {
		s.model = model
	}
}

// WithKeyResolver overrides API key resolution.
func WithKeyResolver(keys KeyResolver) Option {
	return func(s *Service) {
		s.keys = keys
	}
}

// WithRequestBuilder overrides the request builder.
func WithRequestBuilder(builder *multimodal.RequestBuilder) Option {
	return func(s *Service) {
		if builder != nil {
			s.builder = builder
		}
	}
}

// WithStreamBuffer sets the chunk channel capacity. A full buffer blocks
// the producer; chunks are never dropped.
func WithStreamBuffer(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.streamBuffer = size
		}
	}
}

// WithMiddleware appends provider middlewares. The first one given is the
// outermost wrapper.
func WithMiddleware(middlewares ...MiddlewareConfig) Option {
	return func(s *Service) {
		s.middlewares = append(s.middlewares, middlewares...)
	}
}

// WithTracer opens a chat.turn span per invocation.
func WithTracer(tracer observability.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStateObserver registers a callback for every state transition. It
// runs on the invocation's goroutine and must not block.
func WithStateObserver(observer func(Transition)) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

// New builds a Service. It fails when provider or store is nil or a
// middleware has no Send function.
func New(provider ai.Provider, store memory.Store, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, errors.New("chat: provider is nil")
	}
	if store == nil {
		return nil, errors.New("chat: memory store is nil")
	}

	s := &Service{
		provider:     provider,
		store:        store,
		keys:         NewKeyResolver(""),
		streamBuffer: DefaultStreamBuffer,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = multimodal.NewRequestBuilder(multimodal.WithBuilderLogger(s.logger))
	}

	for i, m := range s.middlewares {
		if m.Send == nil {
			return nil, fmt.Errorf("chat: middleware %d has a nil Send function", i)
		}
	}
	s.sendChain = buildSendChain(provider, s.middlewares)
	s.streamChain = buildStreamChain(provider, s.middlewares)
	return s, nil
}

// Store returns the memory store backing the service.
func (s *Service) Store() memory.Store {
	return s.store
}

// History returns the stored conversation.
func (s *Service) History(ctx context.Context, conversationID string) ([]ai.Message, error) {
	return s.store.Get(ctx, conversationID)
}

// Clear removes the stored conversation.
func (s *Service) Clear(ctx context.Context, conversationID string) error {
	return s.store.Clear(ctx, conversationID)
}

// prepared is the output of the synchronous pre-flight shared by Chat and
// Stream.
type prepared struct {
	request ai.ChatRequest
	user    ai.Message
}

func (s *Service) begin(ctx context.Context, req Request, streaming bool) (context.Context, *turn) {
	ctx, span := observability.StartSpan(ctx, s.tracer, observability.SpanChatTurn,
		observability.String(observability.AttrConversationID, req.ConversationID),
		observability.Int(observability.AttrConversationImages, len(req.Images)),
		observability.Bool(observability.AttrConversationStreaming, streaming),
	)
	return ctx, &turn{
		ctx:            ctx,
		conversationID: req.ConversationID,
		state:          StateIdle,
		span:           span,
		logger:         s.logger,
		observer:       s.observer,
	}
}

func (s *Service) prepare(ctx context.Context, t *turn, req Request) (prepared, error) {
	if err := memory.ValidateConversationID(req.ConversationID); err != nil {
		return prepared{}, t.fail(err)
	}

	apiKey, err := s.keys.Resolve()
	if err != nil {
		return prepared{}, t.fail(err)
	}

	history, err := s.store.Get(ctx, req.ConversationID)
	if err != nil {
		return prepared{}, t.fail(err)
	}
	t.span.SetAttributes(observability.Int(observability.AttrConversationHistory, len(history)))

	blocks, user := s.builder.BuildTurn(history, req.Text, req.Images)

	model := req.Model
	if model == "" {
		model = s.model
	}

	return prepared{
		request: ai.ChatRequest{Model: model, Messages: blocks, APIKey: apiKey},
		user:    user,
	}, nil
}

// reconcile appends the finished turn.
func (s *Service) reconcile(ctx context.Context, t *turn, user ai.Message, answer string) error {
	assistant := ai.NewMessage(ai.RoleAssistant, answer)
	if err := s.store.Append(ctx, t.conversationID, []ai.Message{user, assistant}); err != nil {
		return t.fail(err)
	}
	return t.advance(StateReconciled)
}

// Chat runs one synchronous turn and returns the assistant text.
func (s *Service) Chat(ctx context.Context, req Request) (string, error) {
	ctx, t := s.begin(ctx, req, false)
	defer t.span.End()

	p, err := s.prepare(ctx, t, req)
	if err != nil {
		return "", err
	}
	if err := t.advance(StateRequesting); err != nil {
		return "", err
	}

	response, err := s.sendChain(ctx, p.request)
	if err != nil {
		return "", t.fail(&ProviderError{Err: err})
	}
	if err := t.advance(StateCompleted); err != nil {
		return "", err
	}

	if err := s.reconcile(ctx, t, p.user, response.Content); err != nil {
		return "", err
	}
	if err := t.advance(StateDone); err != nil {
		return "", err
	}

	t.span.SetStatus(observability.StatusOK, "")
	s.logger.InfoContext(ctx, "chat turn completed",
		"conversation_id", req.ConversationID,
		"model", response.Model,
	)
	return response.Content, nil
}

// Stream starts a streamed turn. Validation, credential resolution, the
// history read and request building happen before Stream returns and
// their errors are returned directly. The channel then yields text
// chunks in provider order, followed by either one Err chunk or one Done
// chunk, and is closed. Consumers must read until the channel closes.
// Cancelling ctx stops forwarding and skips the memory write unless the
// write already happened; an expired deadline ends the stream with a
// ProviderError chunk.
func (s *Service) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	ctx, t := s.begin(ctx, req, true)

	p, err := s.prepare(ctx, t, req)
	if err != nil {
		t.span.End()
		return nil, err
	}
	if err := t.advance(StateRequesting); err != nil {
		t.span.End()
		return nil, err
	}

	chunks := make(chan Chunk, s.streamBuffer)
	go s.produce(ctx, t, p, chunks)
	return chunks, nil
}

func (s *Service) produce(ctx context.Context, t *turn, p prepared, chunks chan<- Chunk) {
	defer close(chunks)
	defer t.span.End()

	stream, err := s.streamChain(ctx, p.request)
	if err != nil {
		s.abort(ctx, t, chunks, err)
		return
	}
	if err := t.advance(StateStreaming); err != nil {
		finish(ctx, chunks, Chunk{Err: err})
		return
	}

	var answer strings.Builder
	for event, streamErr := range stream.Iter() {
		if streamErr != nil {
			s.abort(ctx, t, chunks, streamErr)
			return
		}
		if event.Type != ai.StreamEventContent || event.Content == "" {
			continue
		}
		answer.WriteString(event.Content)
		if !emit(ctx, chunks, Chunk{Text: event.Content}) {
			s.abort(ctx, t, chunks, ctx.Err())
			return
		}
	}

	if err := ctx.Err(); err != nil {
		s.abort(ctx, t, chunks, err)
		return
	}

	if err := t.advance(StateCompleted); err != nil {
		finish(ctx, chunks, Chunk{Err: err})
		return
	}
	if err := s.reconcile(ctx, t, p.user, answer.String()); err != nil {
		finish(ctx, chunks, Chunk{Err: err})
		return
	}
	if err := t.advance(StateDone); err != nil {
		finish(ctx, chunks, Chunk{Err: err})
		return
	}

	t.span.SetStatus(observability.StatusOK, "")
	finish(ctx, chunks, Chunk{Done: true})
}

// abort handles a provider failure. Cancellation by the caller is not
// reported as a chunk; an expired deadline is a ProviderError like any
// other.
func (s *Service) abort(ctx context.Context, t *turn, chunks chan<- Chunk, err error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		s.cancelled(ctx, t)
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	providerErr := t.fail(&ProviderError{Err: err})
	s.logger.WarnContext(ctx, "stream failed",
		"conversation_id", t.conversationID,
		"error", err,
	)
	finish(ctx, chunks, Chunk{Err: providerErr})
}

func (s *Service) cancelled(ctx context.Context, t *turn) {
	_ = t.fail(ctx.Err())
	s.logger.InfoContext(ctx, "stream cancelled, history unchanged",
		"conversation_id", t.conversationID,
	)
}

// emit sends a text chunk unless ctx is done first. A full channel blocks.
func emit(ctx context.Context, chunks chan<- Chunk, c Chunk) bool {
	select {
	case chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish sends the terminal Err or Done chunk. Consumers read until the
// channel closes, so the send waits for them even after a deadline. Once
// the caller has cancelled, the chunk is only delivered if a reader is
// ready.
func finish(ctx context.Context, chunks chan<- Chunk, c Chunk) {
	select {
	case chunks <- c:
		return
	case <-ctx.Done():
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		select {
		case chunks <- c:
		default:
		}
		return
	}
	chunks <- c
}

// Drain consumes a stream and returns the concatenated text. It returns the
// first Err chunk, or ErrStreamIncomplete when the channel closes without
// Done.
func Drain(chunks <-chan Chunk) (string, error) {
	var sb strings.Builder
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			for range chunks {
			}
			return sb.String(), chunk.Err
		case chunk.Done:
			return sb.String(), nil
		default:
			sb.WriteString(chunk.Text)
		}
	}
	return sb.String(), ErrStreamIncomplete
}
