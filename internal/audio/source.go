package audio

import (
	"context"

	"github.com/fmueller/voxchunk/internal/session"
)

// FileSource serves chunk windows from a loaded WAV recording. It
// satisfies the dispatcher's ChunkSource; slicing is in-memory, so the
// context is only consulted for early cancellation.
type FileSource struct {
	wav *WAV
}

// NewFileSource loads the recording at path once; every chunk window is
// sliced from that single copy.
func NewFileSource(path string) (*FileSource, error) {
	w, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{wav: w}, nil
}

// DurationSeconds is the play length of the underlying recording.
func (s *FileSource) DurationSeconds() float64 {
	return s.wav.DurationSeconds()
}

// ReadWindow returns the window as a standalone WAV payload.
func (s *FileSource) ReadWindow(ctx context.Context, w session.Window) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.wav.Slice(w.Start, w.End)
}
