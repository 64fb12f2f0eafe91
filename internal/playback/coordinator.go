// Package playback owns the shared audio output and guarantees that at most one
// chunk is audible at any instant.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/audio"
)

// Progress reporting rates while playing. Higher configured rates are capped
// at MaxProgressHz.
const (
	DefaultProgressHz = 30
	MaxProgressHz     = 240
)

// State is the transport state of the coordinator.
type State string

// Transport states.
const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// ErrNoSession is returned by Seek when no chunk is loaded.
var ErrNoSession = errors.New("no chunk is loaded")

// Log messages.
const (
	logFmtPlay        = "Playing chunk %d from %.2fs"
	logFmtPause       = "Paused chunk %d at %.2fs"
	logFmtStop        = "Stopped chunk %d"
	logFmtFinished    = "Chunk %d finished"
	logFmtInvalidated = "Playback of chunk %d invalidated"
)

// Source resolves a chunk id to its decoded audio. It fails with
// core.ErrNotPlayable for chunks that are not completed.
type Source interface {
	PlayableAudio(chunkID int) (*audio.Buffer, error)
}

// Progress is one report of the playback position.
type Progress struct {
	ChunkID  int
	Elapsed  float64
	Duration float64
	State    State
}

// Options configures a Coordinator.
type Options struct {
	ProgressHz int
	// Volume is the initial output volume in [0, 1].
	Volume float64
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// session is the single loaded chunk.
type session struct {
	chunkID  int
	buffer   *audio.Buffer
	duration float64
	// offset is the position at the last start, pause or seek.
	offset    float64
	startedAt time.Time
	// run is nil while paused.
	run *run
}

// run is one started Voice and the goroutine watching it.
type run struct {
	voice Voice
	quit  chan struct{}
}

// Coordinator is the sole owner of the Device. Every transport operation takes
// one lock, so stopping the old chunk and starting the new one is atomic.
type Coordinator struct {
	source   Source
	device   Device
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	session     *session
	volume      float64
	subscribers map[int]func(Progress)
	nextSubID   int
}

// NewCoordinator creates a stopped Coordinator.
func NewCoordinator(source Source, device Device, opts Options, log *logger.Logger) *Coordinator {
	switch {
	case opts.ProgressHz <= 0:
		opts.ProgressHz = DefaultProgressHz
	case opts.ProgressHz > MaxProgressHz:
		opts.ProgressHz = MaxProgressHz
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		source:      source,
		device:      device,
		log:         log,
		interval:    time.Second / time.Duration(opts.ProgressHz),
		now:         opts.Now,
		volume:      clampVolume(opts.Volume),
		subscribers: make(map[int]func(Progress)),
	}
}

// Subscribe registers fn for progress reports. The returned function removes
// the subscription.
func (c *Coordinator) Subscribe(fn func(Progress)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subscribers, id)
	}
}

// Play starts chunkID. A paused chunk resumes where it was; any other chunk
// that is loaded is stopped first. A chunk that is not completed is rejected
// and leaves the current session untouched.
func (c *Coordinator) Play(chunkID int) error {
	c.mu.Lock()

	current := c.session
	if current != nil && current.chunkID == chunkID {
		if current.run != nil {
			c.mu.Unlock()

			return nil
		}

		err := c.startLocked(current, current.offset)
		progress := c.progressLocked()
		c.mu.Unlock()

		if err != nil {
			return err
		}

		c.publish(progress)

		return nil
	}

	buffer, err := c.source.PlayableAudio(chunkID)
	if err != nil {
		c.mu.Unlock()

		return fmt.Errorf("failed to play chunk %d: %w", chunkID, err)
	}

	if current != nil {
		c.haltLocked(current)
		c.session = nil
	}

	next := &session{chunkID: chunkID, buffer: buffer, duration: buffer.Duration()}

	err = c.startLocked(next, 0)
	if err != nil {
		c.mu.Unlock()
		c.displaced(current)

		return err
	}

	c.session = next
	progress := c.progressLocked()

	c.mu.Unlock()

	c.displaced(current)
	c.publish(progress)

	return nil
}

// displaced reports a session that Play unloaded to make room for another.
func (c *Coordinator) displaced(sess *session) {
	if sess == nil {
		return
	}

	c.log.Info(logFmtStop, sess.chunkID)
	c.publish(stopped(sess))
}

// Pause suspends the playing chunk and keeps its position.
func (c *Coordinator) Pause() {
	c.mu.Lock()

	current := c.session
	if current == nil || current.run == nil {
		c.mu.Unlock()

		return
	}

	current.offset = c.elapsedLocked(current)
	c.haltLocked(current)
	progress := c.progressLocked()

	c.mu.Unlock()

	c.log.Info(logFmtPause, current.chunkID, progress.Elapsed)
	c.publish(progress)
}

// Stop halts playback and unloads the chunk.
func (c *Coordinator) Stop() {
	c.mu.Lock()

	current := c.session
	if current == nil {
		c.mu.Unlock()

		return
	}

	c.haltLocked(current)
	c.session = nil

	c.mu.Unlock()

	c.log.Info(logFmtStop, current.chunkID)
	c.publish(stopped(current))
}

// Seek moves the loaded chunk to position seconds, clamped to its duration.
// A playing chunk continues from the new position.
func (c *Coordinator) Seek(position float64) error {
	c.mu.Lock()

	current := c.session
	if current == nil {
		c.mu.Unlock()

		return ErrNoSession
	}

	position = max(0, min(position, current.duration))

	if current.run != nil {
		c.haltLocked(current)

		err := c.startLocked(current, position)
		if err != nil {
			c.session = nil
			c.mu.Unlock()

			c.publish(stopped(current))

			return err
		}
	} else {
		current.offset = position
	}

	progress := c.progressLocked()

	c.mu.Unlock()

	c.publish(progress)

	return nil
}

// Invalidate stops playback if chunkID is loaded. The chunk store calls it
// when a chunk's audio is discarded.
func (c *Coordinator) Invalidate(chunkID int) {
	c.mu.Lock()

	current := c.session
	if current == nil || current.chunkID != chunkID {
		c.mu.Unlock()

		return
	}

	c.haltLocked(current)
	c.session = nil

	c.mu.Unlock()

	c.log.Info(logFmtInvalidated, chunkID)
	c.publish(stopped(current))
}

// SetVolume sets the output volume, clamped to [0, 1].
func (c *Coordinator) SetVolume(volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume = clampVolume(volume)

	if c.session != nil && c.session.run != nil {
		c.session.run.voice.SetVolume(c.volume)
	}
}

// Volume returns the output volume.
func (c *Coordinator) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.volume
}

// State returns the current position report.
func (c *Coordinator) State() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.progressLocked()
}

// startLocked starts a Voice for sess at offset and its watcher goroutine.
func (c *Coordinator) startLocked(sess *session, offset float64) error {
	voice, err := c.device.Start(sess.buffer, offset, c.volume)
	if err != nil {
		return fmt.Errorf("failed to start audio output for chunk %d: %w", sess.chunkID, err)
	}

	current := &run{voice: voice, quit: make(chan struct{})}
	sess.run = current
	sess.offset = offset
	sess.startedAt = c.now()

	go c.watch(sess, current)

	c.log.Info(logFmtPlay, sess.chunkID, offset)

	return nil
}

// haltLocked stops the running Voice of sess, if any.
func (c *Coordinator) haltLocked(sess *session) {
	if sess.run == nil {
		return
	}

	sess.run.voice.Stop()
	close(sess.run.quit)
	sess.run = nil
}

// watch reports progress while current is playing and ends the session when
// the audio runs out.
func (c *Coordinator) watch(sess *session, current *run) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-current.quit:
			return
		case <-ticker.C:
			c.mu.Lock()

			if sess.run != current {
				c.mu.Unlock()

				return
			}

			progress := c.progressLocked()
			c.mu.Unlock()

			c.publish(progress)
		case <-current.voice.Done():
			c.finish(sess, current)

			return
		}
	}
}

// finish handles the natural end of a chunk's audio.
func (c *Coordinator) finish(sess *session, current *run) {
	c.mu.Lock()

	if c.session != sess || sess.run != current {
		c.mu.Unlock()

		return
	}

	sess.run = nil
	c.session = nil

	c.mu.Unlock()

	c.log.Info(logFmtFinished, sess.chunkID)
	c.publish(stopped(sess))
}

func (c *Coordinator) elapsedLocked(sess *session) float64 {
	if sess.run == nil {
		return sess.offset
	}

	elapsed := sess.offset + c.now().Sub(sess.startedAt).Seconds()

	return max(0, min(elapsed, sess.duration))
}

func (c *Coordinator) progressLocked() Progress {
	sess := c.session
	if sess == nil {
		return Progress{State: StateStopped}
	}

	state := StatePaused
	if sess.run != nil {
		state = StatePlaying
	}

	return Progress{
		ChunkID:  sess.chunkID,
		Elapsed:  c.elapsedLocked(sess),
		Duration: sess.duration,
		State:    state,
	}
}

func (c *Coordinator) publish(progress Progress) {
	c.mu.Lock()

	subscribers := make([]func(Progress), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}

	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(progress)
	}
}

func stopped(sess *session) Progress {
	return Progress{ChunkID: sess.chunkID, Duration: sess.duration, State: StateStopped}
}

func clampVolume(volume float64) float64 {
	return max(0, min(volume, 1))
}
