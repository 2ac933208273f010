package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks malformed input. Never retried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProviderUnavailable marks a turn for which no provider produced a completion.
	ErrProviderUnavailable = errors.New("AI provider unavailable")
	// ErrConversationNotFound marks a conversation id owned by someone else.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrStore marks a persistence layer failure before the provider was called.
	ErrStore = errors.New("store unavailable")
	// ErrPartialPersistence is set as Response.Warning when the completion was
	// returned but its messages were not all stored.
	ErrPartialPersistence = errors.New("response generated but the conversation was not fully saved")
)

// Error is returned by Orchestrator.Chat. It matches one of the sentinel
// errors above with errors.Is and carries the state the turn failed in.
type Error struct {
	State State
	Kind  error
	// Message is safe to show to the caller.
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(format string, args ...any) *Error {
	return &Error{
		State:   StateResolving,
		Kind:    ErrInvalidRequest,
		Message: fmt.Sprintf(format, args...),
	}
}
