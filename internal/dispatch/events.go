package dispatch

import "github.com/fmueller/voxchunk/internal/session"

// EventType classifies chunk lifecycle events emitted by the dispatcher.
type EventType string

const (
	// EventStarted fires when an attempt for a chunk begins. Retried
	// chunks fire it once per attempt.
	EventStarted EventType = "started"
	// EventRetrying fires when a transient failure schedules another
	// attempt. The chunk is not terminal.
	EventRetrying EventType = "retrying"
	// EventSucceeded fires when a chunk completes with a transcript.
	EventSucceeded EventType = "succeeded"
	// EventFailed fires when a chunk fails permanently without retry
	// (the backend rejected it).
	EventFailed EventType = "failed"
	// EventExhausted fires when a chunk fails terminally after using up
	// all retry attempts on transient errors.
	EventExhausted EventType = "exhausted"
)

// Terminal reports whether t ends a chunk's lifecycle.
func (t EventType) Terminal() bool {
	return t == EventSucceeded || t == EventFailed || t == EventExhausted
}

// Event is one chunk lifecycle transition. Segments and LatencySeconds are
// set on EventSucceeded; LatencySeconds is also set on the terminal
// failure events. Err is set on failure events.
type Event struct {
	Type           EventType
	Index          int
	Attempt        int
	Segments       []session.Segment
	Language       string
	LatencySeconds float64
	Err            error
}
