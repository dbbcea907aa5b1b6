package session

// Window is a half-open-ish chunk time-range in source seconds; End is
// clipped to the recording duration for the final window.
type Window struct {
	Start float64
	End   float64
}

// Plan splits a recording of durationSeconds into chunk windows of
// chunkSizeSeconds, each overlapping its predecessor by overlapSeconds.
// Windows sorted by index cover [0, durationSeconds]; only the final
// window may be shorter than chunkSizeSeconds. The result always has at
// least one window.
func Plan(durationSeconds, chunkSizeSeconds, overlapSeconds float64) ([]Window, error) {
	if durationSeconds <= 0 {
		return nil, NewConfigurationError("duration %.2fs must be positive", durationSeconds)
	}
	if overlapSeconds < 0 {
		return nil, NewConfigurationError("overlap %.2fs must not be negative", overlapSeconds)
	}
	if chunkSizeSeconds <= overlapSeconds {
		return nil, NewConfigurationError("chunk size %.2fs must exceed overlap %.2fs", chunkSizeSeconds, overlapSeconds)
	}

	step := chunkSizeSeconds - overlapSeconds
	var windows []Window
	for i := 0; ; i++ {
		start := float64(i) * step
		if start >= durationSeconds {
			break
		}
		end := start + chunkSizeSeconds
		if end > durationSeconds {
			end = durationSeconds
		}
		windows = append(windows, Window{Start: start, End: end})
		if end >= durationSeconds {
			break
		}
	}
	return windows, nil
}
