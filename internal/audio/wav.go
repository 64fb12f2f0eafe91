package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAV container layout for 16-bit PCM.
const (
	WavHeaderSize  = 44
	riffChunkSize  = 36
	fmtChunkSize   = 16
	audioFormatPCM = 1

	tagRIFF = "RIFF"
	tagWAVE = "WAVE"
	tagFmt  = "fmt "
	tagData = "data"
)

// ErrNotWav is returned when bytes do not start with a canonical PCM WAV header.
var ErrNotWav = errors.New("not a canonical PCM WAV container")

// BuildWavContainer prepends the canonical 44-byte RIFF/WAVE header to pcm.
// All header fields are little-endian.
func BuildWavContainer(pcm []byte, sampleRate, numChannels int) ([]byte, error) {
	format := Format{SampleRate: sampleRate, Channels: numChannels, BitDepth: BitDepth16}

	err := format.Validate()
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, WavHeaderSize+len(pcm)))
	dataSize := uint32(len(pcm))

	buf.WriteString(tagRIFF)
	writeLE(buf, riffChunkSize+dataSize)
	buf.WriteString(tagWAVE)

	buf.WriteString(tagFmt)
	writeLE(buf, uint32(fmtChunkSize))
	writeLE(buf, uint16(audioFormatPCM))
	writeLE(buf, uint16(numChannels))
	writeLE(buf, uint32(sampleRate))
	writeLE(buf, uint32(format.ByteRate()))
	writeLE(buf, uint16(format.BlockAlign()))
	writeLE(buf, uint16(BitDepth16))

	buf.WriteString(tagData)
	writeLE(buf, dataSize)
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// SplitWavContainer reads a canonical header written by BuildWavContainer and
// returns the format and the PCM payload.
func SplitWavContainer(wav []byte) (Format, []byte, error) {
	if len(wav) < WavHeaderSize ||
		string(wav[0:4]) != tagRIFF ||
		string(wav[8:12]) != tagWAVE ||
		string(wav[12:16]) != tagFmt ||
		string(wav[36:40]) != tagData {
		return Format{}, nil, ErrNotWav
	}

	if binary.LittleEndian.Uint16(wav[20:]) != audioFormatPCM {
		return Format{}, nil, fmt.Errorf("%w: format code %d", ErrNotWav, binary.LittleEndian.Uint16(wav[20:]))
	}

	format := Format{
		Channels:   int(binary.LittleEndian.Uint16(wav[22:])),
		SampleRate: int(binary.LittleEndian.Uint32(wav[24:])),
		BitDepth:   int(binary.LittleEndian.Uint16(wav[34:])),
	}

	dataLen := int(binary.LittleEndian.Uint32(wav[40:]))
	if dataLen > len(wav)-WavHeaderSize {
		return Format{}, nil, fmt.Errorf("%w: data length %d exceeds payload", ErrNotWav, dataLen)
	}

	return format, wav[WavHeaderSize : WavHeaderSize+dataLen], nil
}

// writeLE cannot fail on a bytes.Buffer.
func writeLE(buf *bytes.Buffer, value any) {
	_ = binary.Write(buf, binary.LittleEndian, value)
}
