package session

import (
	"github.com/google/uuid"
)

// ChunkStatus tracks one chunk through dispatch, retry, and completion.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkDispatched ChunkStatus = "dispatched"
	ChunkProcessing ChunkStatus = "processing"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// Terminal reports whether no further automatic transition occurs for s.
func (s ChunkStatus) Terminal() bool {
	return s == ChunkCompleted || s == ChunkFailed
}

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusProcessing   Status = "processing"
	StatusPaused       Status = "paused"
	StatusCompleting   Status = "completing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Segment is one timed piece of transcript text. Times are absolute seconds
// into the source recording, not chunk-relative.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Chunk is one bounded time-window of the source processed as a single
// backend request. Index defines chronological order. Result is set only
// when Status is ChunkCompleted.
type Chunk struct {
	Index          int
	Start          float64
	End            float64
	Status         ChunkStatus
	Attempt        int
	Result         []Segment
	LatencySeconds float64
}

// Session is one end-to-end chunked-transcription job. At most one session
// is active per orchestrator; starting a new one discards the previous.
type Session struct {
	ID       string
	Duration float64
	Config   Config
	Chunks   []Chunk
	Status   Status
}

// New plans the chunk windows for a recording of the given duration and
// wraps them in a fresh session. The config must already be validated.
func New(cfg Config, durationSeconds float64) (*Session, error) {
	windows, err := Plan(durationSeconds, cfg.ChunkSizeSeconds, cfg.OverlapSeconds)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = Chunk{
			Index:  i,
			Start:  w.Start,
			End:    w.End,
			Status: ChunkPending,
		}
	}

	return &Session{
		ID:       uuid.New().String(),
		Duration: durationSeconds,
		Config:   cfg,
		Chunks:   chunks,
		Status:   StatusInitializing,
	}, nil
}

// TerminalChunks reports how many chunks completed and how many failed.
func (s *Session) TerminalChunks() (completed, failed int) {
	for _, c := range s.Chunks {
		switch c.Status {
		case ChunkCompleted:
			completed++
		case ChunkFailed:
			failed++
		}
	}
	return completed, failed
}

// AllTerminal reports whether every chunk reached completed or failed.
func (s *Session) AllTerminal() bool {
	for _, c := range s.Chunks {
		if !c.Status.Terminal() {
			return false
		}
	}
	return true
}

// Result is the merged transcript for a whole session. Gaps lists the
// time-ranges lost to permanently failed chunks; Coverage is the fraction
// of Duration represented by successful chunks.
type Result struct {
	Segments []Segment
	Language string
	Duration float64
	Coverage float64
	Gaps     []Window
}
