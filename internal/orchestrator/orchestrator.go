// Package orchestrator coordinates one chunked-transcription session:
// planning, bounded-concurrency dispatch, progress aggregation, and the
// final merge, behind an explicit lifecycle state machine.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/fmueller/voxchunk/internal/dispatch"
	"github.com/fmueller/voxchunk/internal/merge"
	"github.com/fmueller/voxchunk/internal/progress"
	"github.com/fmueller/voxchunk/internal/session"
	"github.com/fmueller/voxchunk/internal/transcribe"
	"go.uber.org/zap"
)

// Options configures an Orchestrator.
type Options struct {
	Logger   *zap.Logger
	Metrics  Recorder
	Dispatch dispatch.Options
}

// Orchestrator owns at most one active session. Callers interact only
// through its operations and listener callbacks; all session state is
// mutated by the orchestrator's own event handling.
type Orchestrator struct {
	client  transcribe.Client
	logger  *zap.Logger
	metrics Recorder
	dopts   dispatch.Options

	mu        sync.Mutex
	state     session.Status
	sess      *session.Session
	disp      *dispatch.Dispatcher
	agg       *progress.Aggregator
	result    *session.Result
	lastErr   *session.Error
	listeners []*registration
	language  string
	discard   bool
	cancelled bool
	runDone   chan struct{}
}

// New builds an orchestrator in the idle state. The caller's composition
// root owns the instance; there is no process-wide orchestrator.
func New(client transcribe.Client, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Orchestrator{
		client:  client,
		logger:  logger,
		metrics: metrics,
		dopts:   opts.Dispatch,
		state:   session.StatusIdle,
	}
}

type registration struct {
	listener Listener
}

// Subscribe registers a listener and returns its removal function.
func (o *Orchestrator) Subscribe(l Listener) (unsubscribe func()) {
	reg := &registration{listener: l}

	o.mu.Lock()
	o.listeners = append(o.listeners, reg)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, existing := range o.listeners {
			if existing == reg {
				o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() session.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Progress returns the latest progress snapshot; the zero snapshot when
// no session ran yet.
func (o *Orchestrator) Progress() progress.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.agg == nil {
		return progress.Snapshot{}
	}
	return o.agg.Snapshot()
}

// Result returns the merged transcript of the completed session, or
// false while none exists.
func (o *Orchestrator) Result() (session.Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return session.Result{}, false
	}
	return *o.result, true
}

// Err returns the structured error of a session in the error state.
func (o *Orchestrator) Err() *session.Error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Start validates cfg, plans the chunk windows, and begins dispatching.
// It fails when a session is already active. Configuration failures move
// the orchestrator to the error state before any chunk is dispatched.
func (o *Orchestrator) Start(ctx context.Context, source dispatch.ChunkSource, cfg session.Config, durationSeconds float64) error {
	o.mu.Lock()
	switch o.state {
	case session.StatusIdle, session.StatusCompleted, session.StatusError:
	default:
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("session already active (state %s)", state)
	}
	o.sess = nil
	o.result = nil
	o.lastErr = nil
	o.language = ""
	o.discard = false
	o.cancelled = false
	o.mu.Unlock()

	o.transition(session.StatusInitializing)

	if cerr := cfg.Validate(); cerr != nil {
		o.failSession(cerr)
		return cerr
	}

	sess, err := session.New(cfg, durationSeconds)
	if err != nil {
		cerr, ok := err.(*session.Error)
		if !ok {
			cerr = session.NewOrchestrationError("session planning failed", err)
		}
		o.failSession(cerr)
		return cerr
	}

	o.logger.Info("session planned",
		zap.String("session", sess.ID),
		zap.Int("chunks", len(sess.Chunks)),
		zap.Float64("duration", durationSeconds),
		zap.Int("concurrency", cfg.MaxConcurrency),
		zap.String("quality", string(cfg.Quality)))

	dopts := o.dopts
	if dopts.MaxAttempts == 0 {
		dopts.MaxAttempts = cfg.MaxAttempts
	}
	if dopts.Logger == nil {
		dopts.Logger = o.logger
	}
	disp := dispatch.NewDispatcher(source, o.client, dopts)

	done := make(chan struct{})

	o.mu.Lock()
	o.sess = sess
	o.disp = disp
	o.agg = progress.NewAggregator(len(sess.Chunks), cfg.MaxConcurrency)
	o.runDone = done
	o.mu.Unlock()

	o.transition(session.StatusProcessing)

	events := disp.Run(ctx, sess)
	go o.consume(events, done)
	return nil
}

// Pause suspends new dispatch; in-flight chunks keep running.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	if o.state != session.StatusProcessing {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot pause from state %s", state)
	}
	disp := o.disp
	o.mu.Unlock()

	disp.Pause()
	o.transition(session.StatusPaused)
	return nil
}

// Resume continues dispatch after Pause.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	if o.state != session.StatusPaused {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot resume from state %s", state)
	}
	disp := o.disp
	o.mu.Unlock()

	disp.Resume()
	o.transition(session.StatusProcessing)
	return nil
}

// Cancel stops the session cooperatively. With discardPartial the
// orchestrator aborts in-flight chunks and returns to idle; otherwise it
// completes with a partial result built from the already-finished chunks.
func (o *Orchestrator) Cancel(discardPartial bool) error {
	o.mu.Lock()
	switch o.state {
	case session.StatusProcessing, session.StatusPaused:
	default:
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot cancel from state %s", state)
	}
	o.cancelled = true
	o.discard = discardPartial
	disp := o.disp
	o.mu.Unlock()

	disp.Stop(discardPartial)
	return nil
}

// Wait blocks until the current session's event loop finishes. It returns
// immediately when no session is running.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.runDone
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Reset returns a finished orchestrator to idle, discarding the previous
// session, result, and error.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	switch o.state {
	case session.StatusIdle, session.StatusCompleted, session.StatusError:
	default:
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot reset from state %s", state)
	}
	o.sess = nil
	o.result = nil
	o.lastErr = nil
	o.agg = nil
	o.mu.Unlock()

	o.transition(session.StatusIdle)
	return nil
}

// consume drains one session's event stream. done is this session's own
// completion channel: finish may publish a state from which a listener
// legally starts the next session, so the field o.runDone can already
// belong to a successor by the time consume winds down.
func (o *Orchestrator) consume(events <-chan dispatch.Event, done chan struct{}) {
	for ev := range events {
		o.handleEvent(ev)
	}
	o.finish()

	o.mu.Lock()
	if o.runDone == done {
		o.runDone = nil
	}
	o.mu.Unlock()
	close(done)
}

func (o *Orchestrator) handleEvent(ev dispatch.Event) {
	o.mu.Lock()
	snap := o.agg.Observe(ev)
	if ev.Type == dispatch.EventSucceeded && o.language == "" {
		o.language = ev.Language
	}
	o.mu.Unlock()

	switch ev.Type {
	case dispatch.EventStarted:
		o.metrics.ChunkStarted()
		o.notify(func(l Listener) { l.OnChunkStarted(ev.Index) })
	case dispatch.EventRetrying:
		o.metrics.ChunkRetried()
	case dispatch.EventSucceeded:
		o.metrics.ChunkSucceeded(ev.LatencySeconds)
	case dispatch.EventFailed, dispatch.EventExhausted:
		o.metrics.ChunkFailed()
	}

	if ev.Type.Terminal() || ev.Type == dispatch.EventStarted {
		o.notify(func(l Listener) { l.OnProgress(snap) })
	}
}

// finish runs once the dispatcher's event stream closes: every chunk is
// terminal, or the session was cancelled.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	discard := o.cancelled && o.discard
	sess := o.sess
	language := o.language
	o.mu.Unlock()

	if sess == nil {
		return
	}

	if discard {
		o.logger.Info("session cancelled, partial result discarded", zap.String("session", sess.ID))
		o.mu.Lock()
		o.sess = nil
		o.agg = nil
		o.mu.Unlock()
		o.transition(session.StatusIdle)
		return
	}

	o.transition(session.StatusCompleting)

	result, err := o.mergeSafely(sess, language)
	if err != nil {
		o.failSession(session.NewOrchestrationError("merging chunk results failed", err))
		return
	}

	o.mu.Lock()
	o.result = &result
	o.mu.Unlock()

	completed, failed := sess.TerminalChunks()
	o.logger.Info("session completed",
		zap.String("session", sess.ID),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
		zap.Float64("coverage", result.Coverage))

	o.transition(session.StatusCompleted)
	o.notify(func(l Listener) { l.OnCompleted(result) })
}

func (o *Orchestrator) mergeSafely(sess *session.Session, language string) (result session.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge panicked: %v", r)
		}
	}()
	return merge.Merge(sess.Chunks, sess.Duration, language), nil
}

func (o *Orchestrator) failSession(serr *session.Error) {
	o.mu.Lock()
	o.lastErr = serr
	o.mu.Unlock()

	o.logger.Error("session failed",
		zap.String("kind", string(serr.Kind)),
		zap.Bool("recoverable", serr.Recoverable),
		zap.Error(serr))

	o.transition(session.StatusError)
	o.notify(func(l Listener) { l.OnFailed(serr) })
}

func (o *Orchestrator) transition(to session.Status) {
	o.mu.Lock()
	from := o.state
	o.state = to
	if o.sess != nil {
		o.sess.Status = to
	}
	o.mu.Unlock()

	if from == to {
		return
	}
	o.logger.Debug("state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	o.notify(func(l Listener) { l.OnStateChanged(from, to) })
}

// notify calls fn for every listener in registration order, isolating
// panics so one broken listener cannot starve the rest or corrupt the
// orchestrator.
func (o *Orchestrator) notify(fn func(Listener)) {
	o.mu.Lock()
	listeners := make([]*registration, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, reg := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Warn("listener panicked", zap.Any("panic", r))
				}
			}()
			fn(reg.listener)
		}()
	}
}
