package chunk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/audio"
	"github.com/book-expert/speech-studio/internal/core"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrent bounds GenerateAll when no limit is configured.
const DefaultMaxConcurrent = 4

// Log messages.
const (
	logFmtGenerationStarted   = "Generating chunk %d (%d chars, voice %s)"
	logFmtGenerationCompleted = "Chunk %d completed: %d bytes, %.2fs"
	logFmtGenerationFailed    = "Chunk %d failed: %v"
	logFmtGenerationCancelled = "Chunk %d generation cancelled"
	logFmtStaleResultDropped  = "Dropping stale result for chunk %d"
)

// Error formats.
const (
	errFmtChunkNotFound = "%w: %d"
	errFmtTransition    = "%w: chunk %d is %s, %s requires %s"
	errFmtNotPlayable   = "%w: chunk %d is %s"
	errFmtNoFrames      = "no PCM frames in %d bytes"
)

// PlaybackInvalidator is told when a chunk's audio stops being valid, so any
// playback of it can be stopped.
type PlaybackInvalidator interface {
	Invalidate(chunkID int)
}

// Options configures a Store.
type Options struct {
	// Format is the PCM format delivered by the generator.
	Format audio.Format
	// VoiceID and Style are applied to every generation request.
	VoiceID string
	Style   string
	// MaxConcurrent bounds GenerateAll.
	MaxConcurrent int
}

// Store owns every chunk of the session. It is safe for concurrent use; each
// in-flight generation runs on its own goroutine and only ever updates its
// own chunk.
type Store struct {
	generator core.SpeechGenerator
	log       *logger.Logger

	mu            sync.Mutex
	format        audio.Format
	voiceID       string
	style         string
	maxConcurrent int
	order         []int
	records       map[int]*record
	nextID        int
	nextToken     uint64
	invalidator   PlaybackInvalidator
	subscribers   map[int]func(Chunk)
	nextSubID     int

	inflight sync.WaitGroup
}

// NewStore creates an empty Store.
func NewStore(generator core.SpeechGenerator, opts Options, log *logger.Logger) (*Store, error) {
	if opts.Format == (audio.Format{}) {
		opts.Format = audio.DefaultFormat()
	}

	err := opts.Format.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid chunk audio format: %w", err)
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}

	return &Store{
		generator:     generator,
		log:           log,
		format:        opts.Format,
		voiceID:       opts.VoiceID,
		style:         opts.Style,
		maxConcurrent: opts.MaxConcurrent,
		records:       make(map[int]*record),
		nextID:        1,
		subscribers:   make(map[int]func(Chunk)),
	}, nil
}

// SetInvalidator registers the playback component to notify when a chunk's
// audio is discarded.
func (s *Store) SetInvalidator(invalidator PlaybackInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidator = invalidator
}

// SetVoice changes the voice used by later generation requests.
func (s *Store) SetVoice(voiceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.voiceID = voiceID
}

// SetStyle changes the style instruction used by later generation requests.
func (s *Store) SetStyle(style string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.style = style
}

// Format returns the PCM format of chunk audio.
func (s *Store) Format() audio.Format {
	return s.format
}

// Subscribe registers fn to receive a snapshot after every change to a chunk.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Chunk)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subscribers, id)
	}
}

// Add creates an idle chunk and returns its snapshot.
func (s *Store) Add(text string) (Chunk, error) {
	if text == "" {
		return Chunk{}, ErrEmptyText
	}

	s.mu.Lock()

	rec := &record{id: s.nextID, text: text, status: StatusIdle}
	s.nextID++
	s.records[rec.id] = rec
	s.order = append(s.order, rec.id)
	snapshot := rec.snapshot(len(s.order))

	s.mu.Unlock()

	s.notify(snapshot)

	return snapshot, nil
}

// AddAll creates one idle chunk per non-empty text, in order.
func (s *Store) AddAll(texts []string) []Chunk {
	chunks := make([]Chunk, 0, len(texts))

	for _, text := range texts {
		created, err := s.Add(text)
		if err != nil {
			continue
		}

		chunks = append(chunks, created)
	}

	return chunks
}

// Get returns a snapshot of the chunk.
func (s *Store) Get(id int) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Chunk{}, fmt.Errorf(errFmtChunkNotFound, ErrChunkNotFound, id)
	}

	return rec.snapshot(s.indexOf(id)), nil
}

// Snapshot returns every chunk in list order.
func (s *Store) Snapshot() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := make([]Chunk, 0, len(s.order))
	for i, id := range s.order {
		chunks = append(chunks, s.records[id].snapshot(i+1))
	}

	return chunks
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Generate issues the speech request for an idle chunk. The call returns once
// the chunk is generating; the result arrives asynchronously.
func (s *Store) Generate(ctx context.Context, id int) error {
	return s.start(ctx, id, "generate", StatusIdle)
}

// Retry re-issues the speech request for a chunk in the error state.
func (s *Store) Retry(ctx context.Context, id int) error {
	return s.start(ctx, id, "retry", StatusError)
}

// Regenerate discards a completed chunk's audio and selection, stops any
// playback of it and issues a new speech request.
func (s *Store) Regenerate(ctx context.Context, id int) error {
	return s.start(ctx, id, "regenerate", StatusCompleted)
}

// Cancel abandons an in-flight generation and returns the chunk to idle. A
// response that still arrives afterwards is ignored.
func (s *Store) Cancel(id int) error {
	s.mu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()

		return fmt.Errorf(errFmtChunkNotFound, ErrChunkNotFound, id)
	}

	if rec.status != StatusGenerating {
		status := rec.status
		s.mu.Unlock()

		return fmt.Errorf(errFmtTransition, ErrInvalidTransition, id, status, "cancel", StatusGenerating)
	}

	s.abort(rec)
	rec.status = StatusIdle
	rec.err = nil
	snapshot := rec.snapshot(s.indexOf(id))

	s.mu.Unlock()

	s.log.Info(logFmtGenerationCancelled, id)
	s.notify(snapshot)

	return nil
}

// Delete removes a chunk, cancelling its generation and stopping its playback.
func (s *Store) Delete(id int) error {
	s.mu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()

		return fmt.Errorf(errFmtChunkNotFound, ErrChunkNotFound, id)
	}

	s.abort(rec)
	snapshot := rec.snapshot(s.indexOf(id))
	snapshot.Removed = true

	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(other int) bool { return other == id })
	invalidator := s.invalidator

	s.mu.Unlock()

	if invalidator != nil {
		invalidator.Invalidate(id)
	}

	s.notify(snapshot)

	return nil
}

// GenerateAll generates every idle or failed chunk, at most MaxConcurrent at a
// time, and waits for all of them. Per-chunk failures are recorded on the
// chunks and never stop the others.
func (s *Store) GenerateAll(ctx context.Context) error {
	err := s.checkCredentials()
	if err != nil {
		return err
	}

	s.mu.Lock()

	var pending []int

	for _, id := range s.order {
		status := s.records[id].status
		if status == StatusIdle || status == StatusError {
			pending = append(pending, id)
		}
	}

	limit := s.maxConcurrent

	s.mu.Unlock()

	var group errgroup.Group

	group.SetLimit(limit)

	for _, id := range pending {
		group.Go(func() error {
			issued, beginErr := s.begin(ctx, id, "generate", StatusIdle, StatusError)
			if beginErr != nil {
				// Deleted, cancelled or already restarted while queued.
				return nil
			}

			s.run(issued)

			return nil
		})
	}

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("failed to generate chunks: %w", err)
	}

	return ctx.Err()
}

// Wait blocks until no generation is in flight.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// PlayableAudio returns the decoded buffer of a completed chunk.
func (s *Store) PlayableAudio(id int) (*audio.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w", core.ErrNotPlayable, fmt.Errorf(errFmtChunkNotFound, ErrChunkNotFound, id))
	}

	if rec.status != StatusCompleted || rec.buffer == nil {
		return nil, fmt.Errorf(errFmtNotPlayable, core.ErrNotPlayable, id, rec.status)
	}

	return rec.buffer, nil
}

// job is one issued speech request.
type job struct {
	ctx     context.Context
	id      int
	token   uint64
	request core.SpeechRequest
}

func (s *Store) start(ctx context.Context, id int, event string, from Status) error {
	err := s.checkCredentials()
	if err != nil {
		return err
	}

	issued, err := s.begin(ctx, id, event, from)
	if err != nil {
		return err
	}

	go s.run(issued)

	return nil
}

// begin moves a chunk to generating. Playback of a regenerated chunk is
// invalidated before the request is issued.
func (s *Store) begin(ctx context.Context, id int, event string, allowed ...Status) (job, error) {
	s.mu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()

		return job{}, fmt.Errorf(errFmtChunkNotFound, ErrChunkNotFound, id)
	}

	if !slices.Contains(allowed, rec.status) {
		status := rec.status
		s.mu.Unlock()

		return job{}, fmt.Errorf(errFmtTransition, ErrInvalidTransition, id, status, event, allowed[0])
	}

	wasCompleted := rec.status == StatusCompleted

	runCtx, cancel := context.WithCancel(ctx)

	s.nextToken++
	rec.token = s.nextToken
	rec.cancel = cancel
	rec.status = StatusGenerating
	rec.err = nil
	rec.clearAudio()

	issued := job{
		ctx:   runCtx,
		id:    id,
		token: rec.token,
		request: core.SpeechRequest{
			Text:    rec.text,
			VoiceID: s.voiceID,
			Style:   s.style,
		},
	}
	snapshot := rec.snapshot(s.indexOf(id))
	invalidator := s.invalidator

	s.inflight.Add(1)
	s.mu.Unlock()

	if wasCompleted && invalidator != nil {
		invalidator.Invalidate(id)
	}

	s.log.Info(logFmtGenerationStarted, id, len(issued.request.Text), issued.request.VoiceID)
	s.notify(snapshot)

	return issued, nil
}

// run performs the speech call and applies its result unless the chunk was
// cancelled, restarted or deleted in the meantime.
func (s *Store) run(issued job) {
	defer s.inflight.Done()

	encoded, err := s.generator.GenerateSpeech(issued.ctx, issued.request)

	var (
		pcm    []byte
		buffer *audio.Buffer
	)

	if err == nil {
		pcm, buffer, err = s.decode(encoded)
	}

	s.mu.Lock()

	rec, ok := s.records[issued.id]
	if !ok || rec.token != issued.token {
		s.mu.Unlock()
		s.log.Info(logFmtStaleResultDropped, issued.id)

		return
	}

	rec.cancel()
	rec.cancel = nil

	if err != nil {
		rec.status = StatusError
		rec.err = &core.GenerationError{ChunkID: issued.id, Err: err}
	} else {
		rec.status = StatusCompleted
		rec.pcm = pcm
		rec.buffer = buffer
		rec.duration = buffer.Duration()
	}

	snapshot := rec.snapshot(s.indexOf(issued.id))

	s.mu.Unlock()

	if err != nil {
		s.log.Error(logFmtGenerationFailed, issued.id, err)
	} else {
		s.log.Info(logFmtGenerationCompleted, issued.id, len(pcm), snapshot.Duration)
	}

	s.notify(snapshot)
}

// decode turns the base64 payload into whole PCM frames and a float buffer.
func (s *Store) decode(encoded string) ([]byte, *audio.Buffer, error) {
	pcm, err := audio.DecodeBase64(encoded)
	if err != nil {
		return nil, nil, err
	}

	buffer, err := audio.BytesToAudioBuffer(pcm, s.format.SampleRate, s.format.Channels)
	if err != nil {
		return nil, nil, &core.DecodeError{Err: err}
	}

	frames := buffer.Frames()
	if frames == 0 {
		return nil, nil, &core.DecodeError{Err: fmt.Errorf(errFmtNoFrames, len(pcm))}
	}

	return pcm[:frames*s.format.BlockAlign()], buffer, nil
}

// abort cancels an in-flight request and bumps the token so its result is
// dropped. Callers hold s.mu.
func (s *Store) abort(rec *record) {
	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}

	s.nextToken++
	rec.token = s.nextToken
}

func (s *Store) checkCredentials() error {
	checker, ok := s.generator.(core.CredentialChecker)
	if !ok {
		return nil
	}

	err := checker.CheckCredentials()
	if err != nil {
		if errors.Is(err, core.ErrMissingCredential) {
			return err
		}

		return fmt.Errorf("%w: %w", core.ErrMissingCredential, err)
	}

	return nil
}

// indexOf returns the 1-based list position of id. Callers hold s.mu.
func (s *Store) indexOf(id int) int {
	return slices.Index(s.order, id) + 1
}

func (s *Store) notify(snapshot Chunk) {
	s.mu.Lock()

	subscribers := make([]func(Chunk), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}

	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}
