package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential means no usable API credential was supplied. It blocks
	// every generation attempt up front and is never retried automatically.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrNotPlayable is returned when playback is requested for a chunk that is
	// not in the completed state.
	ErrNotPlayable = errors.New("chunk is not playable")
	// ErrEmptyAudio is returned when the speech API answered without audio data.
	ErrEmptyAudio = errors.New("response did not contain audio data")
)

// GenerationError reports a failed synthesis for one chunk. Sibling chunks are
// never affected by it.
type GenerationError struct {
	ChunkID int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for chunk %d: %v", e.ChunkID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DecodeError reports malformed base64 or PCM data. It surfaces on the success
// path of a generation, so the chunk store wraps it in a GenerationError.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
