package audio

import (
	"fmt"
	"strings"
	"time"
)

// Wave is an oscillator shape
type Wave string

const (
	WaveSine     Wave = "sine"
	WaveSaw      Wave = "saw"
	WaveSquare   Wave = "square"
	WaveTriangle Wave = "triangle"
)

// ParseWave accepts the wave names used in config files
func ParseWave(s string) (Wave, error) {
	switch w := Wave(strings.ToLower(strings.TrimSpace(s))); w {
	case WaveSine, WaveSaw, WaveSquare, WaveTriangle:
		return w, nil
	case "sawtooth":
		return WaveSaw, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWave, s)
}

// Timbre describes how one instrument sounds
type Timbre struct {
	Name         string
	Wave         Wave
	Attack       time.Duration
	Decay        time.Duration
	Sustain      float64 // level 0-1
	Release      time.Duration
	FilterCutoff float64 // Hz, 0 disables the lowpass
}

// DefaultTimbres are a soft sine and a brighter saw, both lowpassed.
func DefaultTimbres() []Timbre {
	return []Timbre{
		{
			Name:         "sine",
			Wave:         WaveSine,
			Attack:       5 * time.Millisecond,
			Decay:        100 * time.Millisecond,
			Sustain:      0.3,
			Release:      time.Second,
			FilterCutoff: 1100,
		},
		{
			Name:         "saw",
			Wave:         WaveSaw,
			Attack:       5 * time.Millisecond,
			Decay:        100 * time.Millisecond,
			Sustain:      0.3,
			Release:      2 * time.Second,
			FilterCutoff: 1100,
		},
	}
}
