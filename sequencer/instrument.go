package sequencer

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"tonegrid/audio"
	"tonegrid/debug"
	"tonegrid/transport"
)

// Renderer produces one instrument's scale as a single sample buffer
type Renderer interface {
	Render(scale []audio.Note, timbre audio.Timbre, noteLen, noteOffset time.Duration) (*beep.Buffer, error)
}

// NoteSink receives every triggered note (MIDI out)
type NoteSink interface {
	PlayNote(note, velocity uint8, length time.Duration)
}

// InstrumentOptions configures one voice scheduler
type InstrumentOptions struct {
	Width, Height  int
	Timbre         audio.Timbre
	BaseOctave     int
	VoicesPerNote  int
	HighVolume     float64 // dB with one note in the column
	LowVolume      float64 // dB with every row of the column armed
	NoteTailFactor int     // slot length in note lengths
}

// DefaultInstrumentOptions matches a 16x16 grid
func DefaultInstrumentOptions(timbre audio.Timbre) InstrumentOptions {
	return InstrumentOptions{
		Width:          16,
		Height:         16,
		Timbre:         timbre,
		BaseOctave:     3,
		VoicesPerNote:  3,
		HighVolume:     -10,
		LowVolume:      -20,
		NoteTailFactor: 6,
	}
}

type cell struct {
	x, y int
}

// Instrument schedules one timbre's notes on the shared transport and plays
// them through a pool of voices over a pre-rendered scale buffer.
type Instrument struct {
	mu sync.Mutex

	name      string
	width     int
	height    int
	scale     []audio.Note
	midiNotes []uint8

	transport  *transport.Transport
	pool       *audio.VoicePool
	noteLen    time.Duration
	noteOffset time.Duration
	slot       int // samples per scale entry

	high, low float64

	events    map[transport.EventID]cell
	polyphony []int

	sink      NoteSink
	lastGain  float64
	triggered int
}

// NewInstrument renders the scale once and builds the voice pool.
func NewInstrument(tr *transport.Transport, r Renderer, opts InstrumentOptions) (*Instrument, error) {
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("instrument %q: bad grid %dx%d", opts.Timbre.Name, opts.Width, opts.Height)
	}
	if opts.NoteTailFactor < 1 {
		opts.NoteTailFactor = 1
	}

	scale := audio.Pentatonic(opts.Height, opts.BaseOctave)
	midiNotes := make([]uint8, len(scale))
	for i, n := range scale {
		m, err := n.MIDI()
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", opts.Timbre.Name, err)
		}
		midiNotes[i] = uint8(m)
	}

	noteLen := tr.LoopLength() / time.Duration(opts.Width)
	noteOffset := noteLen * time.Duration(opts.NoteTailFactor)

	buf, err := r.Render(scale, opts.Timbre, noteLen, noteOffset)
	if err != nil {
		return nil, fmt.Errorf("render %q: %w", opts.Timbre.Name, err)
	}

	inst := &Instrument{
		name:       opts.Timbre.Name,
		width:      opts.Width,
		height:     opts.Height,
		scale:      scale,
		midiNotes:  midiNotes,
		transport:  tr,
		pool:       audio.NewVoicePool(buf, len(scale)*opts.VoicesPerNote),
		noteLen:    noteLen,
		noteOffset: noteOffset,
		slot:       buf.Format().SampleRate.N(noteOffset),
		high:       opts.HighVolume,
		low:        opts.LowVolume,
		events:     make(map[transport.EventID]cell),
		polyphony:  make([]int, opts.Width),
	}
	debug.Log("inst", "%s: %d notes, %d voices, slot=%v", inst.name, len(scale), inst.pool.Len(), noteOffset)
	return inst, nil
}

func (i *Instrument) Name() string              { return i.name }
func (i *Instrument) Scale() []audio.Note       { return i.scale }
func (i *Instrument) Voices() *audio.VoicePool  { return i.pool }
func (i *Instrument) NoteLength() time.Duration { return i.noteLen }

// MIDINote returns the MIDI number of a row
func (i *Instrument) MIDINote(row int) uint8 {
	return i.midiNotes[row]
}

// SetSink routes triggered notes to s as well as the voices (nil disables)
func (i *Instrument) SetSink(s NoteSink) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sink = s
}

// ScheduleNote adds a looping note at column's offset in the bar.
func (i *Instrument) ScheduleNote(column, row int) transport.EventID {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := i.transport.Schedule(func(id transport.EventID, _ time.Duration) {
		i.trigger(id)
	}, time.Duration(column)*i.noteLen)

	i.events[id] = cell{x: column, y: row}
	i.polyphony[column]++
	return id
}

// UnscheduleNote cancels a note. Unknown ids are ignored.
func (i *Instrument) UnscheduleNote(id transport.EventID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.unscheduleLocked(id)
}

func (i *Instrument) unscheduleLocked(id transport.EventID) {
	c, ok := i.events[id]
	if !ok {
		return
	}
	delete(i.events, id)
	i.polyphony[c.x]--
	i.transport.Clear(id)
}

// Reset cancels every note of this instrument
func (i *Instrument) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id := range i.events {
		i.unscheduleLocked(id)
	}
	for c := range i.polyphony {
		i.polyphony[c] = 0
	}
}

// volume shapes gain by how crowded the column is
func (i *Instrument) volume(column int) float64 {
	frac := float64(i.polyphony[column]) / float64(i.height)
	return i.high + (i.low-i.high)*frac
}

func (i *Instrument) trigger(id transport.EventID) {
	i.mu.Lock()
	c, ok := i.events[id]
	if !ok {
		i.mu.Unlock()
		return
	}
	gain := i.volume(c.x)
	i.pool.Next().Start(c.y*i.slot, i.slot, gain)
	i.lastGain = gain
	i.triggered++
	sink := i.sink
	note := i.midiNotes[c.y]
	velocity := i.velocity(gain)
	i.mu.Unlock()

	debug.LogEvery(50, "inst", "%s trigger col=%d row=%d gain=%.1f", i.name, c.x, c.y, gain)
	if sink != nil {
		sink.PlayNote(note, velocity, i.noteLen)
	}
}

// velocity maps the shaped gain onto 50-100
func (i *Instrument) velocity(gain float64) uint8 {
	span := i.high - i.low
	if span == 0 {
		return 100
	}
	return uint8(50 + 50*(gain-i.low)/span)
}

// ColumnVelocity is the MIDI velocity notes in column currently play at
func (i *Instrument) ColumnVelocity(column int) uint8 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.velocity(i.volume(column))
}

// PlayheadColumn is the column the transport is currently in
func (i *Instrument) PlayheadColumn() int {
	loop := i.transport.LoopLength()
	pos := i.transport.Elapsed() % loop
	col := int(int64(pos) * int64(i.width) / int64(loop))
	if col >= i.width {
		col = i.width - 1
	}
	if col < 0 {
		col = 0
	}
	return col
}

// Polyphony returns how many notes are scheduled in column
func (i *Instrument) Polyphony(column int) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.polyphony[column]
}

// Scheduled returns the number of live events
func (i *Instrument) Scheduled() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.events)
}

// LastGain is the gain of the most recently triggered note
func (i *Instrument) LastGain() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastGain
}

// Triggered counts notes played since creation
func (i *Instrument) Triggered() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.triggered
}
