package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leofalp/mmchat/providers/ai"
)

func TestTimeoutMiddleware_Send_SetsDeadline(t *testing.T) {
	mw := NewTimeoutMiddleware(time.Minute)

	var hadDeadline bool
	next := func(ctx context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
		_, hadDeadline = ctx.Deadline()
		return &ai.ChatResponse{Content: "ok"}, nil
	}

	if _, err := mw.Send(next)(context.Background(), userRequest("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hadDeadline {
		t.Fatal("expected the provider context to carry a deadline")
	}
}

func TestTimeoutMiddleware_Send_Expires(t *testing.T) {
	mw := NewTimeoutMiddleware(10 * time.Millisecond)

	next := func(ctx context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := mw.Send(next)(context.Background(), userRequest("hi"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeoutMiddleware_Stream_ContextLivesUntilDone(t *testing.T) {
	mw := NewTimeoutMiddleware(time.Minute)

	var streamCtx context.Context
	next := func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
		streamCtx = ctx
		return eventStream([]string{"Hel", "lo"}, nil)(ctx, request)
	}

	stream, err := mw.Stream(next)(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The deadline context must still be live before iteration starts.
	if streamCtx.Err() != nil {
		t.Fatalf("context cancelled before the stream was consumed: %v", streamCtx.Err())
	}

	content, err := collectContent(t, stream)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if content != "Hello" {
		t.Fatalf("expected %q, got %q", "Hello", content)
	}
	if !errors.Is(streamCtx.Err(), context.Canceled) {
		t.Fatalf("expected context cancelled after Done, got %v", streamCtx.Err())
	}
}

func TestTimeoutMiddleware_Stream_CancelsOnEarlyBreak(t *testing.T) {
	mw := NewTimeoutMiddleware(time.Minute)

	var streamCtx context.Context
	next := func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
		streamCtx = ctx
		return eventStream([]string{"a", "b", "c"}, nil)(ctx, request)
	}

	stream, err := mw.Stream(next)(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range stream.Iter() {
		break
	}
	if streamCtx.Err() == nil {
		t.Fatal("expected context cancelled after the consumer stopped")
	}
}

func TestTimeoutMiddleware_Stream_OpenErrorCancels(t *testing.T) {
	mw := NewTimeoutMiddleware(time.Minute)

	var streamCtx context.Context
	next := func(ctx context.Context, _ ai.ChatRequest) (*ai.ChatStream, error) {
		streamCtx = ctx
		return nil, errBoom
	}

	if _, err := mw.Stream(next)(context.Background(), userRequest("hi")); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if streamCtx.Err() == nil {
		t.Fatal("expected context cancelled when opening the stream fails")
	}
}
