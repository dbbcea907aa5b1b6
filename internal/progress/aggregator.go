// Package progress turns chunk lifecycle events into progress snapshots
// with a rolling latency average and a remaining-time estimate.
package progress

import (
	"sort"

	"github.com/fmueller/voxchunk/internal/dispatch"
)

// Snapshot is one derived view of session progress. ETAKnown is false
// until the first chunk reaches a terminal state; an ETA of zero seconds
// before that would be misleading rather than informative.
type Snapshot struct {
	ProcessedChunks          int
	TotalChunks              int
	FailedChunks             int
	CurrentlyProcessing      []int
	AverageProcessingSeconds float64
	ETASeconds               float64
	ETAKnown                 bool
}

// Remaining reports how many chunks have not reached a terminal state.
func (s Snapshot) Remaining() int {
	return s.TotalChunks - s.ProcessedChunks - s.FailedChunks
}

// Done reports whether every chunk is terminal.
func (s Snapshot) Done() bool {
	return s.Remaining() == 0
}

// Fraction is completion in [0,1] counting failed chunks as settled.
func (s Snapshot) Fraction() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.ProcessedChunks+s.FailedChunks) / float64(s.TotalChunks)
}

// Aggregator folds dispatcher events into snapshots. It is not
// goroutine-safe: exactly one goroutine (the orchestrator's event loop)
// feeds it.
type Aggregator struct {
	total          int
	maxConcurrency int
	processed      int
	failed         int
	inFlight       map[int]struct{}
	latencySum     float64
	terminalCount  int
}

// NewAggregator tracks a session of total chunks running under the given
// concurrency cap.
func NewAggregator(total, maxConcurrency int) *Aggregator {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Aggregator{
		total:          total,
		maxConcurrency: maxConcurrency,
		inFlight:       make(map[int]struct{}),
	}
}

// Observe folds one event and returns the updated snapshot. The latency
// average is a plain arithmetic mean over all terminal chunks.
func (a *Aggregator) Observe(ev dispatch.Event) Snapshot {
	switch ev.Type {
	case dispatch.EventStarted:
		a.inFlight[ev.Index] = struct{}{}
	case dispatch.EventRetrying:
		delete(a.inFlight, ev.Index)
	case dispatch.EventSucceeded:
		delete(a.inFlight, ev.Index)
		a.processed++
		a.latencySum += ev.LatencySeconds
		a.terminalCount++
	case dispatch.EventFailed, dispatch.EventExhausted:
		delete(a.inFlight, ev.Index)
		a.failed++
		a.latencySum += ev.LatencySeconds
		a.terminalCount++
	}
	return a.Snapshot()
}

// Snapshot derives the current progress view without consuming an event.
func (a *Aggregator) Snapshot() Snapshot {
	snap := Snapshot{
		ProcessedChunks:     a.processed,
		TotalChunks:         a.total,
		FailedChunks:        a.failed,
		CurrentlyProcessing: make([]int, 0, len(a.inFlight)),
	}
	for idx := range a.inFlight {
		snap.CurrentlyProcessing = append(snap.CurrentlyProcessing, idx)
	}
	sort.Ints(snap.CurrentlyProcessing)

	if a.terminalCount == 0 {
		return snap
	}

	snap.AverageProcessingSeconds = a.latencySum / float64(a.terminalCount)
	snap.ETAKnown = true

	remaining := snap.Remaining()
	if remaining <= 0 {
		return snap
	}

	// Remaining chunks run up to maxConcurrency wide, but never wider
	// than the number of chunks left.
	lanes := a.maxConcurrency
	if remaining < lanes {
		lanes = remaining
	}
	snap.ETASeconds = snap.AverageProcessingSeconds * float64(remaining) / float64(lanes)
	return snap
}
