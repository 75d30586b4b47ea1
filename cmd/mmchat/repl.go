package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/leofalp/mmchat/core/chat"
)

const helpText = `commands:
  /image <ref>   attach an image (URL, data URI or local path) to the next message
  /sync <text>   send without streaming
  /history       print the conversation
  /clear         delete the conversation history
  /new           start a new conversation
  /quit          exit`

// repl reads user lines and runs them as chat turns.
type repl struct {
	svc            *chat.Service
	out            io.Writer
	conversationID string
	pending        []string
}

func newREPL(svc *chat.Service, out io.Writer, conversationID string) *repl {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	return &repl{svc: svc, out: out, conversationID: conversationID}
}

// run processes lines from in until EOF, /quit or ctx cancellation.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(r.out, "conversation %s (type /help for commands)\n", r.conversationID)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		quit, err := r.handle(ctx, strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one input line. It reports whether the session should end.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.stream(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/image":
		if arg == "" {
			return false, fmt.Errorf("usage: /image <ref>")
		}
		r.pending = append(r.pending, arg)
		fmt.Fprintf(r.out, "attached %s (%d pending)\n", arg, len(r.pending))
	case "/sync":
		return false, r.sync(ctx, arg)
	case "/history":
		return false, r.history(ctx)
	case "/clear":
		if err := r.svc.Clear(ctx, r.conversationID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "history cleared")
	case "/new":
		r.conversationID = uuid.NewString()
		r.pending = nil
		fmt.Fprintf(r.out, "conversation %s\n", r.conversationID)
	default:
		return false, fmt.Errorf("unknown command %s", command)
	}
	return false, nil
}

func (r *repl) request(text string) chat.Request {
	req := chat.Request{ConversationID: r.conversationID, Text: text, Images: r.pending}
	r.pending = nil
	return req
}

func (r *repl) stream(ctx context.Context, text string) error {
	chunks, err := r.svc.Stream(ctx, r.request(text))
	if err != nil {
		return err
	}

	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			fmt.Fprintln(r.out)
			return chunk.Err
		case chunk.Done:
			fmt.Fprintln(r.out)
		default:
			fmt.Fprint(r.out, chunk.Text)
		}
	}
	return nil
}

func (r *repl) sync(ctx context.Context, text string) error {
	if text == "" && len(r.pending) == 0 {
		return fmt.Errorf("usage: /sync <text>")
	}
	answer, err := r.svc.Chat(ctx, r.request(text))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, answer)
	return nil
}

func (r *repl) history(ctx context.Context) error {
	messages, err := r.svc.History(ctx, r.conversationID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Fprintln(r.out, "(empty)")
		return nil
	}
	for _, message := range messages {
		fmt.Fprintf(r.out, "[%s] %s", message.Role, message.Text)
		if n := len(message.Media); n > 0 {
			fmt.Fprintf(r.out, " (+%d image(s))", n)
		}
		fmt.Fprintln(r.out)
	}
	return nil
}
