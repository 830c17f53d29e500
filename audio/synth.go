package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
)

// SynthRenderer renders a whole scale offline into one buffer: note i
// occupies [i*noteOffset, (i+1)*noteOffset).
type SynthRenderer struct {
	SampleRate beep.SampleRate
}

// Format is the stereo buffer format the renderer produces
func (r SynthRenderer) Format() beep.Format {
	return beep.Format{SampleRate: r.SampleRate, NumChannels: 2, Precision: 2}
}

// Render plays each scale note for noteLen and lets it ring out until the
// next slot begins.
func (r SynthRenderer) Render(scale []Note, timbre Timbre, noteLen, noteOffset time.Duration) (*beep.Buffer, error) {
	if noteOffset < noteLen {
		return nil, fmt.Errorf("note offset %v shorter than note %v", noteOffset, noteLen)
	}
	slot := r.SampleRate.N(noteOffset)
	gate := r.SampleRate.N(noteLen)

	buf := beep.NewBuffer(r.Format())
	for i, note := range scale {
		freq, err := note.Frequency()
		if err != nil {
			return nil, fmt.Errorf("scale entry %d: %w", i, err)
		}
		osc, err := oscillator(r.SampleRate, timbre.Wave, freq)
		if err != nil {
			return nil, fmt.Errorf("scale entry %d (%s): %w", i, note, err)
		}

		var s beep.Streamer = newADSR(osc, r.SampleRate, timbre, gate, slot)
		if timbre.FilterCutoff > 0 {
			s = lowpass(s, float64(r.SampleRate), timbre.FilterCutoff)
		}
		buf.Append(beep.Take(slot, s))
	}
	return buf, nil
}

func oscillator(sr beep.SampleRate, wave Wave, freq float64) (beep.Streamer, error) {
	switch wave {
	case WaveSine:
		return generators.SineTone(sr, freq)
	case WaveSaw:
		return generators.SawtoothTone(sr, freq)
	case WaveSquare:
		return generators.SquareTone(sr, freq)
	case WaveTriangle:
		return generators.TriangleTone(sr, freq)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidWave, wave)
}

// adsr shapes a source with attack/decay/sustain while the gate is open,
// then an exponential release. Output is silent past the release and the
// stream ends after total samples.
type adsr struct {
	src      beep.Streamer
	pos      int
	attack   int
	decay    int
	sustain  float64
	release  int
	gate     int
	total    int
	fade     int
	gateLvl  float64
	released bool
}

// slotFade ramps every slot to zero so a truncated release never clicks
const slotFade = 10 * time.Millisecond

func newADSR(src beep.Streamer, sr beep.SampleRate, t Timbre, gate, total int) *adsr {
	return &adsr{
		src:     src,
		attack:  sr.N(t.Attack),
		decay:   sr.N(t.Decay),
		sustain: clamp01(t.Sustain),
		release: sr.N(t.Release),
		gate:    gate,
		total:   total,
		fade:    sr.N(slotFade),
	}
}

func (e *adsr) level(pos int) float64 {
	if pos < e.gate {
		switch {
		case pos < e.attack:
			return float64(pos) / float64(e.attack)
		case pos < e.attack+e.decay:
			p := float64(pos-e.attack) / float64(e.decay)
			return 1 - p*(1-e.sustain)
		default:
			return e.sustain
		}
	}
	if !e.released {
		e.released = true
		e.gateLvl = e.level(e.gate - 1)
	}
	if e.release <= 0 {
		return 0
	}
	rel := pos - e.gate
	if rel >= e.release {
		return 0
	}
	// -60 dB across the release
	return e.gateLvl * math.Exp(-6.9*float64(rel)/float64(e.release))
}

func (e *adsr) Stream(samples [][2]float64) (n int, ok bool) {
	if e.pos >= e.total {
		return 0, false
	}
	if rem := e.total - e.pos; len(samples) > rem {
		samples = samples[:rem]
	}
	n, ok = e.src.Stream(samples)
	for i := 0; i < n; i++ {
		vol := e.level(e.pos)
		if rem := e.total - e.pos; rem < e.fade {
			vol *= float64(rem) / float64(e.fade)
		}
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.pos++
	}
	return n, ok
}

func (e *adsr) Err() error { return e.src.Err() }

// lowpass is a 12 dB/octave biquad (Butterworth Q)
func lowpass(src beep.Streamer, sampleRate, cutoff float64) beep.Streamer {
	if cutoff >= sampleRate/2 {
		return src
	}
	w0 := 2 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / math.Sqrt2
	cos := math.Cos(w0)
	a0 := 1 + alpha
	b0 := (1 - cos) / 2 / a0
	b1 := (1 - cos) / a0
	b2 := b0
	a1 := -2 * cos / a0
	a2 := (1 - alpha) / a0

	var x1, x2, y1, y2 [2]float64
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		n, ok = src.Stream(samples)
		for i := range samples[:n] {
			for c := 0; c < 2; c++ {
				x := samples[i][c]
				y := b0*x + b1*x1[c] + b2*x2[c] - a1*y1[c] - a2*y2[c]
				x2[c], x1[c] = x1[c], x
				y2[c], y1[c] = y1[c], y
				samples[i][c] = y
			}
		}
		return n, ok
	})
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
