// Package dispatch runs chunk transcription requests with bounded
// concurrency, per-attempt timeouts, and retry with exponential backoff.
// A single scheduler goroutine owns every chunk state transition; workers
// only perform the network call and report back, so no chunk is ever
// mutated by two goroutines.
package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/fmueller/voxchunk/internal/session"
	"github.com/fmueller/voxchunk/internal/transcribe"
	"go.uber.org/zap"
)

// ChunkSource provides the audio payload for a chunk window.
type ChunkSource interface {
	ReadWindow(ctx context.Context, w session.Window) ([]byte, error)
}

// Options tunes a Dispatcher. Zero values fall back to defaults.
type Options struct {
	MaxAttempts int
	// Backoff returns the delay before retry attempt n (n starts at 1).
	Backoff func(attempt int) time.Duration
	// Timeout bounds a single backend request. Zero derives it from the
	// session's quality mode.
	Timeout time.Duration
	// Language is forwarded to the backend with every chunk; empty means
	// auto-detect.
	Language string
	Logger   *zap.Logger
}

// DefaultBackoff doubles a half-second base per attempt.
func DefaultBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Dispatcher schedules the chunks of one session. It is single-use: build
// one per Run.
type Dispatcher struct {
	source  ChunkSource
	client  transcribe.Client
	opts    Options
	cmds    chan command
	stopped chan struct{}
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
)

type command struct {
	kind  commandKind
	abort bool
}

// NewDispatcher builds a dispatcher over the given audio source and
// backend client.
func NewDispatcher(source ChunkSource, client transcribe.Client, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = session.DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		source:  source,
		client:  client,
		opts:    opts,
		cmds:    make(chan command, 8),
		stopped: make(chan struct{}),
	}
}

// Pause stops new dispatch; in-flight attempts continue.
func (d *Dispatcher) Pause() { d.send(command{kind: cmdPause}) }

// Resume re-enables dispatch after Pause.
func (d *Dispatcher) Resume() { d.send(command{kind: cmdResume}) }

// Stop prevents any new dispatch. With abortInFlight, outstanding requests
// are cancelled and their chunks left failed; otherwise they are allowed
// to finish and completed chunks keep their results.
func (d *Dispatcher) Stop(abortInFlight bool) {
	d.send(command{kind: cmdStop, abort: abortInFlight})
}

func (d *Dispatcher) send(c command) {
	select {
	case d.cmds <- c:
	case <-d.stopped:
	}
}

type attemptResult struct {
	index    int
	attempt  int
	segments []session.Segment
	language string
	latency  float64
	err      error
}

// Run processes every chunk of sess and streams lifecycle events. The
// returned channel is closed once all chunks are terminal or the
// dispatcher is stopped. Run owns sess.Chunks for its whole lifetime;
// callers must not mutate them until the channel closes.
func (d *Dispatcher) Run(ctx context.Context, sess *session.Session) <-chan Event {
	// Sized so the scheduler never blocks emitting, even if every chunk
	// uses every attempt. That keeps Stop safe to call from an event
	// handler.
	events := make(chan Event, len(sess.Chunks)*(2*d.opts.MaxAttempts+1))
	go d.run(ctx, sess, events)
	return events
}

func (d *Dispatcher) run(ctx context.Context, sess *session.Session, events chan<- Event) {
	defer close(events)
	defer close(d.stopped)

	timeout := d.opts.Timeout
	if timeout <= 0 {
		timeout = sess.Config.Quality.RequestTimeout()
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	retryCtx, cancelRetry := context.WithCancel(ctx)
	defer cancelRetry()

	pending := make([]int, 0, len(sess.Chunks))
	for i := range sess.Chunks {
		pending = append(pending, i)
	}

	done := make(chan attemptResult)
	retry := make(chan int)
	parentDone := ctx.Done()

	var (
		inflight      int
		awaitingRetry int
		paused        bool
		stopping      bool
	)

	// Lowest-index pending chunk goes first, regardless of how retries
	// interleave with fresh dispatches.
	enqueue := func(idx int) {
		at := sort.SearchInts(pending, idx)
		pending = append(pending, 0)
		copy(pending[at+1:], pending[at:])
		pending[at] = idx
	}

	dispatchReady := func() {
		for !paused && !stopping && inflight < sess.Config.MaxConcurrency && len(pending) > 0 {
			idx := pending[0]
			pending = pending[1:]
			chunk := &sess.Chunks[idx]
			chunk.Status = session.ChunkDispatched
			chunk.Attempt++
			inflight++

			events <- Event{Type: EventStarted, Index: idx, Attempt: chunk.Attempt}
			chunk.Status = session.ChunkProcessing
			d.opts.Logger.Debug("chunk dispatched",
				zap.Int("index", idx),
				zap.Int("attempt", chunk.Attempt),
				zap.Float64("start", chunk.Start),
				zap.Float64("end", chunk.End))

			go d.attempt(workCtx, sess, idx, chunk.Attempt, timeout, done)
		}
	}

	handleResult := func(res attemptResult) {
		chunk := &sess.Chunks[res.index]

		if res.err == nil {
			chunk.Status = session.ChunkCompleted
			chunk.Result = res.segments
			chunk.LatencySeconds = res.latency
			events <- Event{
				Type:           EventSucceeded,
				Index:          res.index,
				Attempt:        res.attempt,
				Segments:       res.segments,
				Language:       res.language,
				LatencySeconds: res.latency,
			}
			return
		}

		if stopping && workCtx.Err() != nil {
			// Aborted by Stop; the session is being torn down, no event.
			chunk.Status = session.ChunkFailed
			chunk.LatencySeconds = res.latency
			return
		}

		if transcribe.Transient(res.err) && res.attempt < d.opts.MaxAttempts && !stopping {
			chunk.Status = session.ChunkPending
			events <- Event{Type: EventRetrying, Index: res.index, Attempt: res.attempt, Err: res.err}
			d.opts.Logger.Warn("chunk attempt failed, retrying",
				zap.Int("index", res.index),
				zap.Int("attempt", res.attempt),
				zap.Error(res.err))

			awaitingRetry++
			delay := d.opts.Backoff(res.attempt)
			go func(idx int) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-retryCtx.Done():
				}
				retry <- idx
			}(res.index)
			return
		}

		chunk.Status = session.ChunkFailed
		chunk.LatencySeconds = res.latency

		kind := EventExhausted
		if !transcribe.Transient(res.err) {
			kind = EventFailed
		}
		events <- Event{
			Type:           kind,
			Index:          res.index,
			Attempt:        res.attempt,
			LatencySeconds: res.latency,
			Err:            transcribe.AsChunkError(res.err),
		}
		d.opts.Logger.Warn("chunk failed permanently",
			zap.Int("index", res.index),
			zap.Int("attempts", res.attempt),
			zap.Error(res.err))
	}

	for {
		dispatchReady()
		if inflight == 0 && awaitingRetry == 0 && (stopping || len(pending) == 0) {
			return
		}

		select {
		case res := <-done:
			inflight--
			handleResult(res)

		case idx := <-retry:
			awaitingRetry--
			if stopping {
				sess.Chunks[idx].Status = session.ChunkFailed
				continue
			}
			enqueue(idx)

		case cmd := <-d.cmds:
			switch cmd.kind {
			case cmdPause:
				paused = true
			case cmdResume:
				paused = false
			case cmdStop:
				stopping = true
				cancelRetry()
				if cmd.abort {
					cancelWork()
				}
			}

		case <-parentDone:
			parentDone = nil
			stopping = true
			cancelRetry()
			cancelWork()
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, sess *session.Session, idx, attempt int, timeout time.Duration, done chan<- attemptResult) {
	chunk := sess.Chunks[idx]
	started := time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	audio, err := d.source.ReadWindow(attemptCtx, session.Window{Start: chunk.Start, End: chunk.End})
	if err != nil {
		done <- attemptResult{index: idx, attempt: attempt, latency: time.Since(started).Seconds(), err: err}
		return
	}

	resp, err := d.client.TranscribeChunk(attemptCtx, transcribe.Request{
		Audio:       audio,
		StartOffset: chunk.Start,
		Quality:     sess.Config.Quality,
		Language:    d.opts.Language,
	})
	res := attemptResult{
		index:   idx,
		attempt: attempt,
		latency: time.Since(started).Seconds(),
		err:     err,
	}
	if err == nil {
		res.segments = resp.Segments
		res.language = resp.Language
	}
	done <- res
}
