package playback

import (
	"sync"
	"time"

	"github.com/book-expert/speech-studio/internal/audio"
)

// Device is the shared audio output. Only the Coordinator starts voices on it.
type Device interface {
	// Start plays buf from offset seconds at the given volume.
	Start(buf *audio.Buffer, offset, volume float64) (Voice, error)
}

// Voice is one running playback on a Device.
type Voice interface {
	Stop()
	SetVolume(volume float64)
	// Done is closed when the audio reaches its end. It is not closed by Stop.
	Done() <-chan struct{}
}

// ClockDevice is a silent Device that plays a buffer by waiting for its
// remaining duration. It drives the coordinator on hosts without a sound card.
type ClockDevice struct{}

// NewClockDevice returns a ClockDevice.
func NewClockDevice() *ClockDevice {
	return &ClockDevice{}
}

// Start implements Device.
func (d *ClockDevice) Start(buf *audio.Buffer, offset, volume float64) (Voice, error) {
	remaining := buf.Slice(offset).Duration()

	voice := &clockVoice{done: make(chan struct{}), volume: volume}
	voice.timer = time.AfterFunc(time.Duration(remaining*float64(time.Second)), voice.finish)

	return voice, nil
}

type clockVoice struct {
	mu     sync.Mutex
	timer  *time.Timer
	done   chan struct{}
	closed bool
	volume float64
}

func (v *clockVoice) finish() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.closed {
		v.closed = true
		close(v.done)
	}
}

func (v *clockVoice) Stop() {
	v.timer.Stop()
}

func (v *clockVoice) SetVolume(volume float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.volume = volume
}

func (v *clockVoice) Done() <-chan struct{} {
	return v.done
}
