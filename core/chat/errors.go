package chat

import (
	"context"
	"errors"
	"fmt"
)

// ErrStreamIncomplete is returned by Drain when the channel closes without
// a Done or Err chunk, which happens when the caller cancelled the
// invocation. If the cancellation came after the memory write, the turn is
// stored even though Done was not delivered.
var ErrStreamIncomplete = errors.New("chat: stream closed before completion")

// errIllegalTransition is returned when the orchestrator would move to a
// state CanTransition forbids.
var errIllegalTransition = errors.New("chat: illegal state transition")

// CredentialError is returned before any network call when no API key can
// be found.
type CredentialError struct {
	EnvVar string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("chat: no API key configured and %s is not set", e.EnvVar)
}

// ProviderError wraps a failed model call, including timeouts.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("chat: provider call failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because a deadline expired.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
