package audio

import "math"

type SilenceMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilentWAV reports whether the recording at path is near-silent:
// RMS at or below thresholdDBFS and peak within 6 dB of it. Empty
// recordings count as silent.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, SilenceMetrics, error) {
	w, err := ReadWAV(path)
	if err != nil {
		return false, SilenceMetrics{}, err
	}

	metrics, err := w.Metrics()
	if err != nil {
		return false, SilenceMetrics{}, err
	}

	if metrics.Samples == 0 {
		return true, metrics, nil
	}

	if math.IsInf(metrics.RMSdBFS, -1) && math.IsInf(metrics.PeakdBFS, -1) {
		return true, metrics, nil
	}

	peakGate := thresholdDBFS + 6
	return metrics.RMSdBFS <= thresholdDBFS && metrics.PeakdBFS <= peakGate, metrics, nil
}

// Metrics measures RMS and peak levels across all samples.
func (w *WAV) Metrics() (SilenceMetrics, error) {
	bytesPerSample := int(w.BitsPerSample / 8)
	if bytesPerSample <= 0 {
		return SilenceMetrics{}, ErrUnsupportedWAV
	}

	var peak float64
	var sumSquares float64
	var samples int64

	for i := 0; i+bytesPerSample <= len(w.data); i += bytesPerSample {
		value, err := decodeSample(w.data[i:i+bytesPerSample], w.Format, w.BitsPerSample)
		if err != nil {
			return SilenceMetrics{}, err
		}

		abs := math.Abs(value)
		if abs > peak {
			peak = abs
		}
		sumSquares += value * value
		samples++
	}

	if samples == 0 {
		return SilenceMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1), Samples: 0}, nil
	}

	rms := math.Sqrt(sumSquares / float64(samples))
	return SilenceMetrics{
		RMSdBFS:  amplitudeToDBFS(rms),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  samples,
	}, nil
}
