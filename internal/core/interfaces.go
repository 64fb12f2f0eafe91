// Package core defines the interfaces and error taxonomy shared by the speech studio.
package core

import "context"

// SpeechRequest describes one synthesis call for a single chunk of text.
// Style is an out-of-band delivery instruction and must never be spoken.
type SpeechRequest struct {
	Text    string
	VoiceID string
	Style   string
}

// SpeechGenerator wraps a remote speech-generation API. On success it returns
// base64-encoded 16-bit signed PCM, mono, at 24000 Hz.
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, req SpeechRequest) (string, error)
}

// CredentialChecker is implemented by generators that can tell, before any
// request is made, whether their credential is usable.
type CredentialChecker interface {
	CheckCredentials() error
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Artifact is a finished export: WAV bytes for a single chunk or an archive of
// several WAV files.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	ChunkIDs    []int
	// FirstIndex is the 1-based list position of the first exported chunk.
	FirstIndex int
}

// Exporter delivers an artifact somewhere the user can fetch it and returns
// where it went.
type Exporter interface {
	Export(ctx context.Context, artifact Artifact) (string, error)
}
