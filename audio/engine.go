package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"

	"tonegrid/debug"
)

// Engine is the output mix every voice feeds. Without Start it can still be
// pulled directly (tests, offline export).
type Engine struct {
	mu      sync.Mutex
	format  beep.Format
	mixer   *beep.Mixer
	master  *effects.Volume
	started bool
}

// NewEngine creates a stereo engine at sampleRate
func NewEngine(sampleRate beep.SampleRate) *Engine {
	mixer := &beep.Mixer{}
	return &Engine{
		format: beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2},
		mixer:  mixer,
		master: &effects.Volume{Streamer: mixer, Base: 2},
	}
}

func (e *Engine) Format() beep.Format { return e.format }

// Start opens the speaker with the given buffer length and begins playback
func (e *Engine) Start(bufferSize time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	sr := e.format.SampleRate
	if err := speaker.Init(sr, sr.N(bufferSize)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	speaker.Play(e.master)
	e.started = true
	debug.Log("audio", "speaker started rate=%d buffer=%v", sr, bufferSize)
	return nil
}

// Close stops the speaker
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	speaker.Clear()
	speaker.Close()
	e.started = false
	debug.Log("audio", "speaker closed")
}

// locked runs fn with the speaker paused when it is running
func (e *Engine) locked(fn func()) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		speaker.Lock()
		defer speaker.Unlock()
	}
	fn()
}

// Add connects streamers to the output mix
func (e *Engine) Add(s ...beep.Streamer) {
	e.locked(func() { e.mixer.Add(s...) })
}

// Voices returns how many streamers feed the mix
func (e *Engine) Voices() int {
	var n int
	e.locked(func() { n = e.mixer.Len() })
	return n
}

// SetMuted silences the master output without stopping voices
func (e *Engine) SetMuted(muted bool) {
	e.locked(func() { e.master.Silent = muted })
	debug.Log("audio", "muted=%v", muted)
}

func (e *Engine) Muted() bool {
	var m bool
	e.locked(func() { m = e.master.Silent })
	return m
}

// Stream pulls mixed samples. Only valid while the speaker is not running.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	return e.master.Stream(samples)
}

func (e *Engine) Err() error { return nil }
