// Package audio reads WAV recordings, slices chunk windows out of them,
// and measures silence. Only RIFF/WAVE with PCM (8/16/24/32-bit) or IEEE
// float (32/64-bit) samples is supported.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

// WAV is a fully loaded recording: format description plus raw sample
// bytes. Recordings are loaded once and sliced many times, one slice per
// chunk window.
type WAV struct {
	Format        uint16
	Channels      int
	SampleRate    int
	BitsPerSample uint16
	data          []byte
}

// ReadWAV loads and validates a WAV file.
func ReadWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return decodeWAV(f)
}

func decodeWAV(f *os.File) (*WAV, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return nil, fmt.Errorf("read wav header: %w", err)
	}

	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, ErrInvalidWAV
	}

	var (
		w          WAV
		dataOffset int64
		dataSize   uint32
		hasFmt     bool
		hasData    bool
	)

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		chunkStart, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek wav chunk start: %w", err)
		}

		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, ErrInvalidWAV
			}

			buf := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, buf); err != nil {
				return nil, fmt.Errorf("read wav fmt chunk: %w", err)
			}

			w.Format = binary.LittleEndian.Uint16(buf[0:2])
			w.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			w.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			hasFmt = true

			if chunkSize%2 != 0 {
				if _, err := f.Seek(1, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("seek wav fmt padding: %w", err)
				}
			}
		case "data":
			dataOffset = chunkStart
			dataSize = chunkSize
			hasData = true
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("seek wav data chunk: %w", err)
			}
		default:
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return nil, ErrInvalidWAV
	}
	if w.Channels <= 0 || w.SampleRate <= 0 {
		return nil, ErrInvalidWAV
	}
	if err := validateFormat(w.Format, w.BitsPerSample); err != nil {
		return nil, err
	}

	if _, err := f.Seek(dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek wav data offset: %w", err)
	}

	w.data = make([]byte, dataSize)
	if _, err := io.ReadFull(f, w.data); err != nil {
		return nil, fmt.Errorf("read wav data: %w", err)
	}

	return &w, nil
}

func (w *WAV) bytesPerFrame() int {
	return int(w.BitsPerSample/8) * w.Channels
}

// DurationSeconds is the play length of the recording.
func (w *WAV) DurationSeconds() float64 {
	frame := w.bytesPerFrame()
	if frame == 0 {
		return 0
	}
	return float64(len(w.data)/frame) / float64(w.SampleRate)
}

// Slice cuts [startSec, endSec) out of the recording and returns it as a
// standalone WAV payload with the same format, suitable for upload.
func (w *WAV) Slice(startSec, endSec float64) ([]byte, error) {
	if startSec < 0 || endSec <= startSec {
		return nil, fmt.Errorf("invalid slice range [%f, %f)", startSec, endSec)
	}

	frame := w.bytesPerFrame()
	startByte := int(startSec*float64(w.SampleRate)) * frame
	endByte := int(endSec*float64(w.SampleRate)) * frame
	if startByte >= len(w.data) {
		return nil, fmt.Errorf("slice start %.2fs beyond recording end %.2fs", startSec, w.DurationSeconds())
	}
	if endByte > len(w.data) {
		endByte = len(w.data)
	}

	return encodeWAV(w, w.data[startByte:endByte]), nil
}

// encodeWAV wraps raw sample bytes in a minimal RIFF container matching
// the source format.
func encodeWAV(w *WAV, samples []byte) []byte {
	const fmtChunkSize = 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + len(samples))

	out := make([]byte, 0, 12+8+fmtChunkSize+8+len(samples))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(riffSize))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, fmtChunkSize)
	out = binary.LittleEndian.AppendUint16(out, w.Format)
	out = binary.LittleEndian.AppendUint16(out, uint16(w.Channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(w.SampleRate))
	byteRate := w.SampleRate * w.bytesPerFrame()
	out = binary.LittleEndian.AppendUint32(out, uint32(byteRate))
	out = binary.LittleEndian.AppendUint16(out, uint16(w.bytesPerFrame()))
	out = binary.LittleEndian.AppendUint16(out, w.BitsPerSample)

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(samples)))
	out = append(out, samples...)
	return out
}

func validateFormat(audioFormat, bitsPerSample uint16) error {
	if audioFormat != 1 && audioFormat != 3 {
		return ErrUnsupportedWAV
	}

	if audioFormat == 1 {
		switch bitsPerSample {
		case 8, 16, 24, 32:
			return nil
		default:
			return ErrUnsupportedWAV
		}
	}

	switch bitsPerSample {
	case 32, 64:
		return nil
	default:
		return ErrUnsupportedWAV
	}
}

func decodeSample(sample []byte, audioFormat, bitsPerSample uint16) (float64, error) {
	if audioFormat == 3 {
		switch bitsPerSample {
		case 32:
			bits := binary.LittleEndian.Uint32(sample)
			return float64(math.Float32frombits(bits)), nil
		case 64:
			bits := binary.LittleEndian.Uint64(sample)
			return math.Float64frombits(bits), nil
		default:
			return 0, ErrUnsupportedWAV
		}
	}

	switch bitsPerSample {
	case 8:
		u := float64(sample[0])
		return (u - 128.0) / 128.0, nil
	case 16:
		v := int16(binary.LittleEndian.Uint16(sample))
		return float64(v) / 32768.0, nil
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0, nil
	case 32:
		v := int32(binary.LittleEndian.Uint32(sample))
		return float64(v) / 2147483648.0, nil
	default:
		return 0, ErrUnsupportedWAV
	}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
