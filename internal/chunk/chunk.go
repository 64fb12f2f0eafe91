// Package chunk implements the chunk lifecycle store: the in-memory list of
// text chunks, their generation state machine, selection and export.
package chunk

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/book-expert/speech-studio/internal/audio"
)

// Status is the lifecycle state of a chunk.
type Status string

// Chunk statuses.
const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Store errors.
var (
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrInvalidTransition = errors.New("invalid chunk transition")
	ErrNotSelectable     = errors.New("only completed chunks can be selected")
	ErrNothingSelected   = errors.New("no chunks selected")
	ErrEmptyText         = errors.New("chunk text cannot be empty")
)

// Chunk is a snapshot of one chunk. Audio is present only when Status is
// StatusCompleted, and Err only when Status is StatusError. Audio is a copy;
// changing it does not affect the store.
type Chunk struct {
	ID       int
	Index    int
	Text     string
	Status   Status
	Audio    []byte
	Duration float64
	Selected bool
	Err      error
	// Removed is set on the final notification for a deleted chunk.
	Removed bool
}

// Label is the 1-based display name of the chunk.
func (c Chunk) Label() string {
	return "CHUNK " + strconv.Itoa(c.Index)
}

// record is the store-owned state behind a Chunk.
type record struct {
	id       int
	text     string
	status   Status
	pcm      []byte
	buffer   *audio.Buffer
	duration float64
	selected bool
	err      error
	// token identifies the current generation; results carrying an older
	// token are dropped.
	token  uint64
	cancel func()
}

func (r *record) snapshot(index int) Chunk {
	return Chunk{
		ID:       r.id,
		Index:    index,
		Text:     r.text,
		Status:   r.status,
		Audio:    bytes.Clone(r.pcm),
		Duration: r.duration,
		Selected: r.selected,
		Err:      r.err,
	}
}

// clearAudio drops decoded audio and selection when the chunk leaves
// StatusCompleted.
func (r *record) clearAudio() {
	r.pcm = nil
	r.buffer = nil
	r.duration = 0
	r.selected = false
}
