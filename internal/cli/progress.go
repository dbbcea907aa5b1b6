package cli

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fmueller/voxchunk/internal/progress"
	"github.com/schollz/progressbar/v3"
)

// progressRenderer drives one progress bar from orchestrator snapshots.
// Snapshot callbacks and stop may race, hence the mutex.
type progressRenderer struct {
	enabled bool

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	stopped bool
}

func newProgressRenderer(enabled bool) *progressRenderer {
	return &progressRenderer{enabled: enabled}
}

func (r *progressRenderer) update(snap progress.Snapshot) {
	if !r.enabled || snap.TotalChunks == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	if r.bar == nil {
		r.bar = progressbar.NewOptions(
			snap.TotalChunks,
			progressbar.OptionSetDescription("Transcribing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(20),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	_ = r.bar.Set(snap.ProcessedChunks + snap.FailedChunks)
	r.bar.Describe(describeProgress(snap))
}

func (r *progressRenderer) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func describeProgress(snap progress.Snapshot) string {
	if !snap.ETAKnown {
		return "Transcribing"
	}
	return fmt.Sprintf("Transcribing (ETA %s)", formatETA(snap.ETASeconds))
}

func formatETA(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}
