package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fmueller/voxchunk/internal/session"
	"github.com/fmueller/voxchunk/internal/transcribe"
	"github.com/stretchr/testify/require"
)

type staticSource struct{}

func (staticSource) ReadWindow(_ context.Context, w session.Window) ([]byte, error) {
	return []byte(fmt.Sprintf("window-%.0f-%.0f", w.Start, w.End)), nil
}

// fakeClient answers per chunk start-offset and records peak concurrency.
type fakeClient struct {
	mu        sync.Mutex
	inflight  int32
	peak      int32
	calls     map[float64]int
	respond   func(offset float64, call int) (transcribe.Response, error)
	blockTime time.Duration
	gate      chan struct{}
}

func (f *fakeClient) callTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeClient) TranscribeChunk(ctx context.Context, req transcribe.Request) (transcribe.Response, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	for {
		prev := atomic.LoadInt32(&f.peak)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.peak, prev, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inflight, -1)

	if f.blockTime > 0 {
		select {
		case <-time.After(f.blockTime):
		case <-ctx.Done():
			return transcribe.Response{}, ctx.Err()
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return transcribe.Response{}, ctx.Err()
		}
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[float64]int)
	}
	f.calls[req.StartOffset]++
	call := f.calls[req.StartOffset]
	f.mu.Unlock()

	return f.respond(req.StartOffset, call)
}

func okResponse(offset float64) (transcribe.Response, error) {
	return transcribe.Response{
		Language: "en",
		Segments: []session.Segment{{Start: offset, End: offset + 1, Text: "ok"}},
	}, nil
}

func newTestSession(t *testing.T, maxConcurrency int) *session.Session {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.ChunkSizeSeconds = 30
	cfg.OverlapSeconds = 5
	cfg.MaxConcurrency = maxConcurrency

	sess, err := session.New(cfg, 100)
	require.NoError(t, err)
	require.Len(t, sess.Chunks, 4)
	return sess
}

func fastOptions() Options {
	return Options{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return time.Millisecond },
		Timeout:     5 * time.Second,
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var out []Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out waiting for dispatcher events")
		}
	}
}

func TestDispatcherCompletesAllChunks(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(offset float64, _ int) (transcribe.Response, error) {
		return okResponse(offset)
	}}
	sess := newTestSession(t, 2)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := collect(t, d.Run(context.Background(), sess))

	var succeeded int
	for _, ev := range events {
		if ev.Type == EventSucceeded {
			succeeded++
			require.NotEmpty(t, ev.Segments)
			require.Equal(t, "en", ev.Language)
		}
	}
	require.Equal(t, 4, succeeded)
	require.True(t, sess.AllTerminal())

	completed, failed := sess.TerminalChunks()
	require.Equal(t, 4, completed)
	require.Zero(t, failed)
}

func TestDispatcherHonorsConcurrencyCap(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		blockTime: 30 * time.Millisecond,
		respond: func(offset float64, _ int) (transcribe.Response, error) {
			return okResponse(offset)
		},
	}
	sess := newTestSession(t, 2)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	collect(t, d.Run(context.Background(), sess))

	require.LessOrEqual(t, atomic.LoadInt32(&client.peak), int32(2))
	require.Greater(t, atomic.LoadInt32(&client.peak), int32(0))
}

func TestDispatcherDispatchesLowestIndexFirst(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(offset float64, _ int) (transcribe.Response, error) {
		return okResponse(offset)
	}}
	sess := newTestSession(t, 1)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := collect(t, d.Run(context.Background(), sess))

	var startedOrder []int
	for _, ev := range events {
		if ev.Type == EventStarted {
			startedOrder = append(startedOrder, ev.Index)
		}
	}
	require.Equal(t, []int{0, 1, 2, 3}, startedOrder)
}

func TestDispatcherRetriesTransientFailuresThenExhausts(t *testing.T) {
	t.Parallel()

	// Chunk 2 (offset 50) always fails with a transient error.
	client := &fakeClient{respond: func(offset float64, _ int) (transcribe.Response, error) {
		if offset == 50 {
			return transcribe.Response{}, transcribe.ErrServerBusy
		}
		return okResponse(offset)
	}}
	sess := newTestSession(t, 2)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := collect(t, d.Run(context.Background(), sess))

	var retries, exhausted int
	for _, ev := range events {
		switch ev.Type {
		case EventRetrying:
			retries++
			require.Equal(t, 2, ev.Index)
		case EventExhausted:
			exhausted++
			require.Equal(t, 2, ev.Index)

			var serr *session.Error
			require.ErrorAs(t, ev.Err, &serr)
			require.Equal(t, session.ErrTransientChunk, serr.Kind)
		case EventFailed:
			t.Fatalf("unexpected permanent failure event for chunk %d", ev.Index)
		}
	}
	require.Equal(t, 2, retries)
	require.Equal(t, 1, exhausted)
	require.Equal(t, 3, client.calls[50.0])

	require.Equal(t, session.ChunkFailed, sess.Chunks[2].Status)
	completed, failed := sess.TerminalChunks()
	require.Equal(t, 3, completed)
	require.Equal(t, 1, failed)
}

func TestDispatcherDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(offset float64, _ int) (transcribe.Response, error) {
		if offset == 25 {
			return transcribe.Response{}, transcribe.ErrBadRequest
		}
		return okResponse(offset)
	}}
	sess := newTestSession(t, 2)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := collect(t, d.Run(context.Background(), sess))

	var failed int
	for _, ev := range events {
		switch ev.Type {
		case EventFailed:
			failed++
			require.Equal(t, 1, ev.Index)

			var serr *session.Error
			require.ErrorAs(t, ev.Err, &serr)
			require.Equal(t, session.ErrPermanentChunk, serr.Kind)
		case EventRetrying:
			t.Fatalf("chunk %d must not be retried on permanent failure", ev.Index)
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 1, client.calls[25.0])
}

func TestDispatcherRetrySucceedsOnLaterAttempt(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(offset float64, call int) (transcribe.Response, error) {
		if offset == 0 && call < 3 {
			return transcribe.Response{}, transcribe.ErrServer
		}
		return okResponse(offset)
	}}
	sess := newTestSession(t, 2)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	collect(t, d.Run(context.Background(), sess))

	require.True(t, sess.AllTerminal())
	completed, failed := sess.TerminalChunks()
	require.Equal(t, 4, completed)
	require.Zero(t, failed)
	require.Equal(t, 3, sess.Chunks[0].Attempt)
}

func TestDispatcherStopPreventsNewDispatch(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		blockTime: 20 * time.Millisecond,
		respond: func(offset float64, _ int) (transcribe.Response, error) {
			return okResponse(offset)
		},
	}
	sess := newTestSession(t, 1)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := d.Run(context.Background(), sess)

	var stopOnce sync.Once

	var collected []Event
	for ev := range events {
		collected = append(collected, ev)
		if ev.Type == EventSucceeded && ev.Index == 1 {
			stopOnce.Do(func() { d.Stop(false) })
		}
	}

	var started []int
	for _, ev := range collected {
		if ev.Type == EventStarted {
			started = append(started, ev.Index)
		}
	}
	// Chunks 0 and 1 ran; stop arrived before 2 or 3 could be dispatched.
	require.Subset(t, []int{0, 1, 2}, started)
	require.Equal(t, session.ChunkCompleted, sess.Chunks[0].Status)
	require.Equal(t, session.ChunkCompleted, sess.Chunks[1].Status)
	require.Equal(t, session.ChunkPending, sess.Chunks[3].Status)
}

func TestDispatcherStopAbortsInFlight(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		blockTime: 5 * time.Second,
		respond: func(offset float64, _ int) (transcribe.Response, error) {
			return okResponse(offset)
		},
	}
	sess := newTestSession(t, 2)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := d.Run(context.Background(), sess)

	started := make(chan struct{})
	var once sync.Once
	go func() {
		for ev := range events {
			if ev.Type == EventStarted {
				once.Do(func() { close(started) })
			}
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk was started")
	}

	stopStarted := time.Now()
	d.Stop(true)

	require.Eventually(t, func() bool {
		select {
		case <-d.stopped:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	require.Less(t, time.Since(stopStarted), 3*time.Second, "abort must not wait out the full request")
}

func TestDispatcherPauseBlocksNewDispatch(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	client := &fakeClient{
		gate: gate,
		respond: func(offset float64, _ int) (transcribe.Response, error) {
			return okResponse(offset)
		},
	}
	sess := newTestSession(t, 1)

	d := NewDispatcher(staticSource{}, client, fastOptions())
	events := d.Run(context.Background(), sess)

	collected := make(chan []Event, 1)
	firstStarted := make(chan struct{})
	go func() {
		var out []Event
		var once sync.Once
		for ev := range events {
			out = append(out, ev)
			if ev.Type == EventStarted {
				once.Do(func() { close(firstStarted) })
			}
		}
		collected <- out
	}()

	<-firstStarted
	// Pause while chunk 0 is still blocked in the backend, then let it
	// finish. The freed slot must not be refilled until Resume.
	d.Pause()
	gate <- struct{}{}

	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, client.callTotal())

	d.Resume()
	for i := 0; i < 3; i++ {
		gate <- struct{}{}
	}

	var succeeded int
	select {
	case out := <-collected:
		for _, ev := range out {
			if ev.Type == EventSucceeded {
				succeeded++
			}
		}
	case <-time.After(10 * time.Second):
		t.Fatal("dispatcher did not finish after resume")
	}
	require.Equal(t, 4, succeeded)
}

func TestDefaultBackoffGrowsExponentially(t *testing.T) {
	t.Parallel()

	require.Equal(t, 500*time.Millisecond, DefaultBackoff(1))
	require.Equal(t, time.Second, DefaultBackoff(2))
	require.Equal(t, 2*time.Second, DefaultBackoff(3))
}
