package merge

import (
	"math/rand"
	"testing"

	"github.com/fmueller/voxchunk/internal/session"
	"github.com/stretchr/testify/require"
)

// fourChunks plans duration=100, size=30, overlap=5 and marks every chunk
// completed with one segment in its own region and one in the overlap
// with its successor.
func fourChunks(t *testing.T) []session.Chunk {
	t.Helper()

	windows, err := session.Plan(100, 30, 5)
	require.NoError(t, err)

	chunks := make([]session.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = session.Chunk{
			Index:  i,
			Start:  w.Start,
			End:    w.End,
			Status: session.ChunkCompleted,
			Result: []session.Segment{
				{Start: w.Start + 1, End: w.Start + 5, Text: "body"},
			},
		}
		if i+1 < len(windows) {
			// Entirely inside the overlap with the next window.
			chunks[i].Result = append(chunks[i].Result, session.Segment{
				Start: windows[i+1].Start + 0.5,
				End:   w.End - 0.5,
				Text:  "boundary",
			})
		}
	}
	return chunks
}

func TestMergeAttributesOverlapToLaterChunk(t *testing.T) {
	t.Parallel()

	result := Merge(fourChunks(t), 100, "en")

	// Each chunk's boundary segment is dropped in favor of the later
	// chunk's reading of that region, so only the body segments remain.
	require.Len(t, result.Segments, 4)
	for _, seg := range result.Segments {
		require.Equal(t, "body", seg.Text)
	}
	require.Equal(t, 1.0, result.Coverage)
	require.Empty(t, result.Gaps)
	require.Equal(t, "en", result.Language)
	require.Equal(t, 100.0, result.Duration)
}

func TestMergeKeepsEarlierOverlapWhenLaterChunkFailed(t *testing.T) {
	t.Parallel()

	chunks := fourChunks(t)
	chunks[1].Status = session.ChunkFailed
	chunks[1].Result = nil

	result := Merge(chunks, 100, "en")

	// Chunk 0's boundary segment survives because chunk 1 cannot claim
	// the overlap region anymore.
	var boundaries int
	for _, seg := range result.Segments {
		if seg.Text == "boundary" {
			boundaries++
		}
	}
	require.Equal(t, 1, boundaries)
	require.Less(t, result.Coverage, 1.0)
}

func TestMergeOrdersByStartTimeWithIndexTieBreak(t *testing.T) {
	t.Parallel()

	chunks := []session.Chunk{
		{
			Index: 0, Start: 0, End: 30, Status: session.ChunkCompleted,
			Result: []session.Segment{{Start: 10, End: 12, Text: "from-zero"}},
		},
		{
			Index: 1, Start: 25, End: 55, Status: session.ChunkCompleted,
			Result: []session.Segment{
				{Start: 10, End: 12, Text: "from-one"},
				{Start: 5, End: 7, Text: "early"},
			},
		},
	}

	result := Merge(chunks, 55, "")
	require.Len(t, result.Segments, 3)
	require.Equal(t, "early", result.Segments[0].Text)
	require.Equal(t, "from-zero", result.Segments[1].Text)
	require.Equal(t, "from-one", result.Segments[2].Text)
}

func TestMergeFailedChunkLeavesGapButSessionCompletes(t *testing.T) {
	t.Parallel()

	chunks := fourChunks(t)
	// Chunk 2 covers [50,80]; neighbors cover [25,55] and [75,100].
	chunks[2].Status = session.ChunkFailed
	chunks[2].Result = nil

	result := Merge(chunks, 100, "en")

	require.Less(t, result.Coverage, 1.0)
	require.InDelta(t, 0.80, result.Coverage, 1e-9)
	require.Equal(t, []session.Window{{Start: 55, End: 75}}, result.Gaps)

	for _, seg := range result.Segments {
		require.False(t, seg.Start >= 55 && seg.End <= 75, "segment %v lies in the failed window", seg)
	}
}

func TestMergeDeterministicUnderCompletionOrderPermutation(t *testing.T) {
	t.Parallel()

	base := fourChunks(t)
	reference := Merge(base, 100, "en")

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]session.Chunk, len(base))
		copy(shuffled, base)
		// Completion order is irrelevant; only index order matters, and
		// Merge receives chunks sorted by index as the session stores
		// them. Permute latencies and attempts to mimic different runs.
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i].LatencySeconds, shuffled[j].LatencySeconds = shuffled[j].LatencySeconds, shuffled[i].LatencySeconds
			shuffled[i].Attempt, shuffled[j].Attempt = shuffled[j].Attempt, shuffled[i].Attempt
		})
		require.Equal(t, reference, Merge(shuffled, 100, "en"))
	}
}

func TestMergeAllChunksFailed(t *testing.T) {
	t.Parallel()

	chunks := fourChunks(t)
	for i := range chunks {
		chunks[i].Status = session.ChunkFailed
		chunks[i].Result = nil
	}

	result := Merge(chunks, 100, "")
	require.Empty(t, result.Segments)
	require.Zero(t, result.Coverage)
	require.Equal(t, []session.Window{{Start: 0, End: 100}}, result.Gaps)
}

func TestMergePartialSessionCoversOnlyFinishedWindows(t *testing.T) {
	t.Parallel()

	chunks := fourChunks(t)
	chunks[2].Status = session.ChunkPending
	chunks[2].Result = nil
	chunks[3].Status = session.ChunkPending
	chunks[3].Result = nil

	result := Merge(chunks, 100, "en")
	require.InDelta(t, 0.55, result.Coverage, 1e-9)
	require.Equal(t, []session.Window{{Start: 55, End: 100}}, result.Gaps)
}
