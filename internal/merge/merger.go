// Package merge combines per-chunk transcripts into one chronological
// result. The outcome depends only on chunk content and status, never on
// the order chunks happened to complete in.
package merge

import (
	"sort"

	"github.com/fmueller/voxchunk/internal/session"
)

type attributed struct {
	segment session.Segment
	index   int
}

// Merge builds the final transcript from the session's chunks.
//
// Where two adjacent windows overlap, segments lying entirely inside the
// overlap are attributed to the later chunk, which saw more surrounding
// context for that region; if the later chunk failed, the earlier chunk's
// segments are kept instead. Windows lost to failed chunks appear as
// explicit gaps and lower the coverage fraction.
func Merge(chunks []session.Chunk, durationSeconds float64, language string) session.Result {
	kept := make([]attributed, 0, 64)

	for i, c := range chunks {
		if c.Status != session.ChunkCompleted {
			continue
		}
		for _, seg := range c.Result {
			if dropForLaterChunk(chunks, i, seg) {
				continue
			}
			kept = append(kept, attributed{segment: seg, index: i})
		}
	}

	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].segment.Start != kept[b].segment.Start {
			return kept[a].segment.Start < kept[b].segment.Start
		}
		return kept[a].index < kept[b].index
	})

	segments := make([]session.Segment, len(kept))
	for i, k := range kept {
		segments[i] = k.segment
	}

	covered := coveredRanges(chunks)
	return session.Result{
		Segments: segments,
		Language: language,
		Duration: durationSeconds,
		Coverage: coverageFraction(covered, durationSeconds),
		Gaps:     gapRanges(covered, durationSeconds),
	}
}

// dropForLaterChunk reports whether seg of chunk i falls entirely inside
// the overlap with a completed successor, which then owns that region.
func dropForLaterChunk(chunks []session.Chunk, i int, seg session.Segment) bool {
	if i+1 >= len(chunks) {
		return false
	}
	next := chunks[i+1]
	if next.Status != session.ChunkCompleted {
		return false
	}
	overlapStart := next.Start
	overlapEnd := chunks[i].End
	if overlapStart >= overlapEnd {
		return false
	}
	return seg.Start >= overlapStart && seg.End <= overlapEnd
}

// coveredRanges returns the merged union of completed chunk windows,
// sorted and non-overlapping.
func coveredRanges(chunks []session.Chunk) []session.Window {
	windows := make([]session.Window, 0, len(chunks))
	for _, c := range chunks {
		if c.Status == session.ChunkCompleted {
			windows = append(windows, session.Window{Start: c.Start, End: c.End})
		}
	}
	if len(windows) == 0 {
		return nil
	}

	sort.Slice(windows, func(a, b int) bool { return windows[a].Start < windows[b].Start })

	merged := []session.Window{windows[0]}
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

func coverageFraction(covered []session.Window, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	var sum float64
	for _, w := range covered {
		sum += w.End - w.Start
	}
	frac := sum / durationSeconds
	if frac > 1 {
		frac = 1
	}
	return frac
}

// gapRanges is the complement of covered within [0, durationSeconds].
func gapRanges(covered []session.Window, durationSeconds float64) []session.Window {
	var gaps []session.Window
	cursor := 0.0
	for _, w := range covered {
		if w.Start > cursor {
			gaps = append(gaps, session.Window{Start: cursor, End: w.Start})
		}
		if w.End > cursor {
			cursor = w.End
		}
	}
	if cursor < durationSeconds {
		gaps = append(gaps, session.Window{Start: cursor, End: durationSeconds})
	}
	return gaps
}
