package session

import "fmt"

// ErrorKind classifies caller-visible failures.
type ErrorKind string

const (
	// ErrConfiguration marks invalid session parameters. The job never starts.
	ErrConfiguration ErrorKind = "configuration"
	// ErrTransientChunk marks a retryable chunk failure (network, timeout,
	// server busy). Absorbed by the dispatcher, never aborts the session.
	ErrTransientChunk ErrorKind = "transient-chunk"
	// ErrPermanentChunk marks a chunk the backend rejected outright. The
	// chunk is failed without retry; the session continues.
	ErrPermanentChunk ErrorKind = "permanent-chunk"
	// ErrOrchestration marks an internal invariant violation. The session
	// moves to the error state.
	ErrOrchestration ErrorKind = "orchestration"
)

// Error is the structured failure payload surfaced to callers and
// listeners: what went wrong, whether retrying the session makes sense,
// and what the user could do about it.
type Error struct {
	Kind        ErrorKind
	Message     string
	Recoverable bool
	Suggestion  string
	Err         error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewConfigurationError reports invalid session parameters.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{
		Kind:        ErrConfiguration,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: false,
		Suggestion:  "fix the session configuration and start again",
	}
}

// NewOrchestrationError wraps an internal fault in a structured payload.
func NewOrchestrationError(message string, err error) *Error {
	return &Error{
		Kind:        ErrOrchestration,
		Message:     message,
		Recoverable: false,
		Err:         err,
	}
}
