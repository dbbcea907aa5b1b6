// Package transcribe is the request/response boundary to the external
// speech-recognition backend. One request carries one chunk of audio; the
// backend answers with timed segments relative to the chunk, which the
// client shifts to source-absolute times before returning.
package transcribe

import (
	"context"
	"errors"

	"github.com/fmueller/voxchunk/internal/session"
)

// Request is one chunk of audio handed to the backend. StartOffset is the
// chunk's position in the source recording; returned segment times are
// shifted by it so callers only ever see source-absolute seconds.
type Request struct {
	Audio       []byte
	StartOffset float64
	Quality     session.QualityMode
	Language    string
}

// Response is the backend's transcript for one chunk.
type Response struct {
	Segments []session.Segment
	Language string
	Duration float64
}

// Client transcribes a single chunk. Implementations must be safe for
// concurrent use; the dispatcher issues up to maxConcurrency calls at once.
type Client interface {
	TranscribeChunk(ctx context.Context, req Request) (Response, error)
}

// Sentinel causes used by error classification.
var (
	ErrServerBusy  = errors.New("transcription server busy")
	ErrServer      = errors.New("transcription server error")
	ErrBadRequest  = errors.New("transcription request rejected")
	ErrUnavailable = errors.New("transcription server unreachable")
)

// Transient reports whether err is worth retrying: network failures,
// timeouts, and server-side trouble. Permanent rejections and context
// cancellation are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrBadRequest) {
		return false
	}
	if errors.Is(err, ErrServerBusy) || errors.Is(err, ErrServer) || errors.Is(err, ErrUnavailable) {
		return true
	}
	// Unclassified errors (raw net errors, unexpected EOFs) default to
	// retryable; a retry against a healthy server is cheap.
	return true
}

// AsChunkError wraps a backend failure in the structured error surfaced to
// callers, preserving the transient/permanent split.
func AsChunkError(err error) *session.Error {
	if err == nil {
		return nil
	}
	if Transient(err) {
		return &session.Error{
			Kind:        session.ErrTransientChunk,
			Message:     err.Error(),
			Recoverable: true,
			Suggestion:  "check server connectivity or reduce concurrency",
			Err:         err,
		}
	}
	return &session.Error{
		Kind:        session.ErrPermanentChunk,
		Message:     err.Error(),
		Recoverable: false,
		Err:         err,
	}
}
