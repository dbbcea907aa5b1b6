package orchestrator

import (
	"github.com/fmueller/voxchunk/internal/progress"
	"github.com/fmueller/voxchunk/internal/session"
)

// Listener receives lifecycle notifications. Calls are synchronous and
// arrive in event order; a panicking listener is isolated and never
// prevents the remaining listeners from being notified.
type Listener interface {
	OnStateChanged(from, to session.Status)
	OnChunkStarted(index int)
	OnProgress(snap progress.Snapshot)
	OnCompleted(result session.Result)
	OnFailed(err *session.Error)
}

// ListenerFuncs adapts plain functions to Listener; nil fields are
// ignored.
type ListenerFuncs struct {
	StateChanged func(from, to session.Status)
	ChunkStarted func(index int)
	Progress     func(snap progress.Snapshot)
	Completed    func(result session.Result)
	Failed       func(err *session.Error)
}

func (l ListenerFuncs) OnStateChanged(from, to session.Status) {
	if l.StateChanged != nil {
		l.StateChanged(from, to)
	}
}

func (l ListenerFuncs) OnChunkStarted(index int) {
	if l.ChunkStarted != nil {
		l.ChunkStarted(index)
	}
}

func (l ListenerFuncs) OnProgress(snap progress.Snapshot) {
	if l.Progress != nil {
		l.Progress(snap)
	}
}

func (l ListenerFuncs) OnCompleted(result session.Result) {
	if l.Completed != nil {
		l.Completed(result)
	}
}

func (l ListenerFuncs) OnFailed(err *session.Error) {
	if l.Failed != nil {
		l.Failed(err)
	}
}

// Recorder receives chunk-level measurements. The metrics package
// implements it; a nil recorder disables measurement.
type Recorder interface {
	ChunkStarted()
	ChunkRetried()
	ChunkSucceeded(latencySeconds float64)
	ChunkFailed()
}

type nopRecorder struct{}

func (nopRecorder) ChunkStarted()          {}
func (nopRecorder) ChunkRetried()          {}
func (nopRecorder) ChunkSucceeded(float64) {}
func (nopRecorder) ChunkFailed()           {}
