package session

import "time"

// QualityMode selects the speed/accuracy trade-off the backend applies.
type QualityMode string

const (
	QualitySpeed    QualityMode = "speed"
	QualityBalance  QualityMode = "balance"
	QualityAccuracy QualityMode = "accuracy"
)

// Valid reports whether q is a recognized mode.
func (q QualityMode) Valid() bool {
	switch q {
	case QualitySpeed, QualityBalance, QualityAccuracy:
		return true
	}
	return false
}

// RequestTimeout is the per-chunk backend timeout budget for this mode.
// Accuracy runs larger beams server-side and gets more headroom.
func (q QualityMode) RequestTimeout() time.Duration {
	switch q {
	case QualitySpeed:
		return 2 * time.Minute
	case QualityAccuracy:
		return 8 * time.Minute
	default:
		return 4 * time.Minute
	}
}

// Accepted parameter ranges for a session.
const (
	MinChunkSizeSeconds = 10
	MaxChunkSizeSeconds = 300
	MinOverlapSeconds   = 0
	MaxOverlapSeconds   = 30
	MinConcurrency      = 1
	MaxConcurrency      = 8
	DefaultMaxAttempts  = 3
)

// Config holds the parameters one transcription session runs with.
// AutoScroll is a UI hint carried through unused by the core.
type Config struct {
	ChunkSizeSeconds float64
	OverlapSeconds   float64
	MaxConcurrency   int
	Quality          QualityMode
	MaxAttempts      int
	AutoScroll       bool
}

// DefaultConfig returns the parameters used when the caller sets nothing.
func DefaultConfig() Config {
	return Config{
		ChunkSizeSeconds: 60,
		OverlapSeconds:   5,
		MaxConcurrency:   3,
		Quality:          QualityBalance,
		MaxAttempts:      DefaultMaxAttempts,
	}
}

// Validate checks every parameter against its accepted range and returns a
// configuration error naming the first violation.
func (c Config) Validate() *Error {
	if c.ChunkSizeSeconds < MinChunkSizeSeconds || c.ChunkSizeSeconds > MaxChunkSizeSeconds {
		return NewConfigurationError("chunk size %.0fs out of range [%d, %d]", c.ChunkSizeSeconds, MinChunkSizeSeconds, MaxChunkSizeSeconds)
	}
	if c.OverlapSeconds < MinOverlapSeconds || c.OverlapSeconds > MaxOverlapSeconds {
		return NewConfigurationError("overlap %.0fs out of range [%d, %d]", c.OverlapSeconds, MinOverlapSeconds, MaxOverlapSeconds)
	}
	if c.OverlapSeconds >= c.ChunkSizeSeconds {
		return NewConfigurationError("overlap %.0fs must be smaller than chunk size %.0fs", c.OverlapSeconds, c.ChunkSizeSeconds)
	}
	if c.MaxConcurrency < MinConcurrency || c.MaxConcurrency > MaxConcurrency {
		return NewConfigurationError("max concurrency %d out of range [%d, %d]", c.MaxConcurrency, MinConcurrency, MaxConcurrency)
	}
	if !c.Quality.Valid() {
		return NewConfigurationError("unknown quality mode %q", string(c.Quality))
	}
	if c.MaxAttempts < 1 {
		return NewConfigurationError("max attempts %d must be at least 1", c.MaxAttempts)
	}
	return nil
}
