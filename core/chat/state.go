package chat

import "fmt"

// State is a phase of one Chat or Stream invocation.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateReconciled
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateRequesting: "requesting",
	StateStreaming:  "streaming",
	StateCompleted:  "completed",
	StateReconciled: "reconciled",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether moving from s to next is legal. Any
// non-terminal state may move to StateFailed.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	switch s {
	case StateIdle:
		return next == StateRequesting
	case StateRequesting:
		return next == StateStreaming || next == StateCompleted
	case StateStreaming:
		return next == StateCompleted
	case StateCompleted:
		return next == StateReconciled
	case StateReconciled:
		return next == StateDone
	}
	return false
}

// Transition is one observed state change of an invocation.
type Transition struct {
	ConversationID string
	From           State
	To             State
}
