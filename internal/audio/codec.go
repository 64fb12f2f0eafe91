package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/book-expert/speech-studio/internal/core"
)

// Normalization factors for signed 16-bit samples. Negative values scale by
// 32768 and non-negative by 32767, matching the signed 16-bit range.
const (
	int16NegativeScale = 32768.0
	int16PositiveScale = 32767.0
)

// Buffer holds planar float audio, one slice per channel, each sample in
// [-1.0, 1.0].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of frames (samples per channel).
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}

	return float64(b.Frames()) / float64(b.SampleRate)
}

// Slice returns a view of the buffer starting at offset seconds. Offsets are
// clamped to the buffer bounds. The channel data is shared, not copied.
func (b *Buffer) Slice(offset float64) *Buffer {
	start := 0
	if offset > 0 && b.SampleRate > 0 {
		start = int(offset * float64(b.SampleRate))
	}

	start = min(start, b.Frames())

	channels := make([][]float32, len(b.Channels))
	for i, data := range b.Channels {
		channels[i] = data[start:]
	}

	return &Buffer{SampleRate: b.SampleRate, Channels: channels}
}

// DecodeBase64 decodes standard base64 text into bytes.
func DecodeBase64(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &core.DecodeError{Err: fmt.Errorf("malformed base64: %w", err)}
	}

	return data, nil
}

// BytesToAudioBuffer interprets pcm as signed 16-bit little-endian samples
// interleaved by channel. A trailing partial frame is dropped.
func BytesToAudioBuffer(pcm []byte, sampleRate, numChannels int) (*Buffer, error) {
	err := validateSampleRate(sampleRate)
	if err != nil {
		return nil, err
	}

	err = validateChannels(numChannels)
	if err != nil {
		return nil, err
	}

	frameCount := len(pcm) / bytesPerSample / numChannels

	channels := make([][]float32, numChannels)
	for channel := range channels {
		channels[channel] = make([]float32, frameCount)
	}

	for frame := range frameCount {
		for channel := range numChannels {
			offset := (frame*numChannels + channel) * bytesPerSample
			sample := int16(binary.LittleEndian.Uint16(pcm[offset:]))
			channels[channel][frame] = float32(float64(sample) / int16NegativeScale)
		}
	}

	return &Buffer{SampleRate: sampleRate, Channels: channels}, nil
}

// AudioBufferToPCM converts a float buffer to 16-bit little-endian PCM,
// interleaving channels. Samples are clamped to [-1, 1] first.
func AudioBufferToPCM(buf *Buffer) []byte {
	numChannels := buf.NumChannels()
	frames := buf.Frames()
	out := make([]byte, frames*numChannels*bytesPerSample)

	offset := 0

	for frame := range frames {
		for channel := range numChannels {
			value := floatToInt16(buf.Channels[channel][frame])
			binary.LittleEndian.PutUint16(out[offset:], uint16(value))
			offset += bytesPerSample
		}
	}

	return out
}

// PCMDuration returns the length in seconds of pcmLen bytes of 16-bit PCM.
func PCMDuration(pcmLen, sampleRate, numChannels int) float64 {
	if sampleRate <= 0 || numChannels <= 0 {
		return 0
	}

	frames := pcmLen / bytesPerSample / numChannels

	return float64(frames) / float64(sampleRate)
}

func floatToInt16(sample float32) int16 {
	clamped := math.Max(-1, math.Min(1, float64(sample)))
	if math.IsNaN(clamped) {
		return 0
	}

	if clamped < 0 {
		return int16(clamped * int16NegativeScale)
	}

	return int16(clamped * int16PositiveScale)
}
