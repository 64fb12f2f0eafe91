// Package audio provides the PCM/WAV codec used by the speech studio: base64
// decoding, 16-bit PCM to float buffers and back, WAV containers and duration
// formatting. Every function here is pure.
package audio

import (
	"errors"
	"fmt"
)

// Speech source parameters. The remote APIs deliver 16-bit signed PCM, mono, at
// 24 kHz, and every encode/decode call must use the same values.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	BitDepth16        = 16
	bytesPerSample    = BitDepth16 / 8
)

// Validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
)

// Error formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
	errFmtBitDepth        = "%w: only 16-bit PCM is supported, got %d"
)

// ErrInvalidFormat is returned for sample rates, channel counts or bit depths
// outside what the codec handles.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes interleaved signed PCM.
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bitDepth"`
}

// DefaultFormat returns the format produced by the speech backends.
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   BitDepth16,
	}
}

// Validate checks the format is one the codec can encode and decode.
func (f Format) Validate() error {
	err := validateSampleRate(f.SampleRate)
	if err != nil {
		return err
	}

	err = validateChannels(f.Channels)
	if err != nil {
		return err
	}

	if f.BitDepth != BitDepth16 {
		return fmt.Errorf(errFmtBitDepth, ErrInvalidFormat, f.BitDepth)
	}

	return nil
}

// BlockAlign is the size in bytes of one frame.
func (f Format) BlockAlign() int {
	return f.Channels * bytesPerSample
}

// ByteRate is the number of bytes per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate, sampleRate)
	}

	return nil
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels, channels)
	}

	return nil
}
