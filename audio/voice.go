package audio

import (
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// Voice plays slices of a shared buffer. It is added to the output mix once
// and never drains: when idle it streams silence.
type Voice struct {
	mu     sync.Mutex
	buf    *beep.Buffer
	slot   slot
	gain   effects.Volume
	gainDB float64
	starts int
}

// slot streams the current slice, or silence
type slot struct {
	src beep.StreamSeeker
}

func (s *slot) Stream(samples [][2]float64) (int, bool) {
	n := 0
	if s.src != nil {
		var ok bool
		n, ok = s.src.Stream(samples)
		if !ok || n < len(samples) {
			s.src = nil
		}
	}
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (s *slot) Err() error { return nil }

// NewVoice binds a voice to buf
func NewVoice(buf *beep.Buffer) *Voice {
	v := &Voice{buf: buf}
	v.gain = effects.Volume{Streamer: &v.slot, Base: 10}
	return v
}

// Start plays samples [from, from+length) of the buffer at gainDB decibels,
// cutting off whatever the voice was playing.
func (v *Voice) Start(from, length int, gainDB float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := v.buf.Len()
	if from < 0 {
		from = 0
	}
	to := from + length
	if to > total {
		to = total
	}
	if from >= to {
		v.slot.src = nil
		return
	}
	v.slot.src = v.buf.Streamer(from, to)
	// amplitude = 10^(dB/20)
	v.gain.Volume = gainDB / 20
	v.gainDB = gainDB
	v.starts++
}

// Gain returns the decibel gain of the last Start
func (v *Voice) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gainDB
}

// Playing reports whether a slice is still streaming
func (v *Voice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.slot.src != nil
}

// Starts counts how often the voice was started
func (v *Voice) Starts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.starts
}

func (v *Voice) Stream(samples [][2]float64) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain.Stream(samples)
}

func (v *Voice) Err() error { return nil }

// VoicePool hands out voices round-robin
type VoicePool struct {
	mu     sync.Mutex
	voices []*Voice
	cursor int
}

// NewVoicePool creates n voices over the same buffer
func NewVoicePool(buf *beep.Buffer, n int) *VoicePool {
	if n < 1 {
		n = 1
	}
	p := &VoicePool{voices: make([]*Voice, n)}
	for i := range p.voices {
		p.voices[i] = NewVoice(buf)
	}
	return p
}

// Next returns the voice under the cursor and advances it
func (p *VoicePool) Next() *Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.voices[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.voices)
	return v
}

func (p *VoicePool) Len() int { return len(p.voices) }

// Streamers returns every voice for adding to a mixer
func (p *VoicePool) Streamers() []beep.Streamer {
	out := make([]beep.Streamer, len(p.voices))
	for i, v := range p.voices {
		out[i] = v
	}
	return out
}
