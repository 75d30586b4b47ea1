package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leofalp/mmchat/providers/observability"
)

// turn tracks the state of one invocation and reports every transition to
// the logger, the span and the optional observer.
type turn struct {
	ctx            context.Context
	conversationID string
	state          State
	span           observability.Span
	logger         *slog.Logger
	observer       func(Transition)
}

func (t *turn) to(next State) error {
	if !t.state.CanTransition(next) {
		t.logger.Error("rejected state transition",
			"conversation_id", t.conversationID,
			"from", t.state.String(),
			"to", next.String(),
		)
		return fmt.Errorf("%w: %s -> %s", errIllegalTransition, t.state, next)
	}

	transition := Transition{ConversationID: t.conversationID, From: t.state, To: next}
	t.state = next

	t.logger.DebugContext(t.ctx, "state transition",
		"conversation_id", t.conversationID,
		"from", transition.From.String(),
		"state", next.String(),
	)
	t.span.AddEvent(observability.EventStateTransition,
		observability.String(observability.AttrConversationState, next.String()),
	)
	if t.observer != nil {
		t.observer(transition)
	}
	return nil
}

// fail moves to StateFailed, records err on the span and returns err.
func (t *turn) fail(err error) error {
	if !t.state.Terminal() {
		_ = t.to(StateFailed)
	}
	t.span.RecordError(err)
	t.span.SetStatus(observability.StatusError, err.Error())
	return err
}

// advance performs a sequence of transitions, stopping at the first
// illegal one.
func (t *turn) advance(states ...State) error {
	for _, next := range states {
		if err := t.to(next); err != nil {
			return t.fail(err)
		}
	}
	return nil
}
