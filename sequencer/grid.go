package sequencer

import (
	"errors"
	"fmt"
	"sync"

	"tonegrid/coord"
	"tonegrid/debug"
)

var (
	ErrInvalidIndex   = errors.New("invalid instrument index")
	ErrOutOfBounds    = errors.New("cell out of bounds")
	ErrMalformedState = errors.New("malformed grid state")
)

// FrameRenderer draws one frame of the grid. pointerX/Y are in pixels.
type FrameRenderer interface {
	Update(g *Grid, pointerX, pointerY float64)
}

// Muter silences the audio output
type Muter interface {
	SetMuted(muted bool)
}

// Cell is a grid coordinate
type Cell struct {
	X, Y int
}

// Grid owns every tile and one instrument per timbre. Arm and disarm are
// the only tile mutators; they run under a whole-grid lock.
type Grid struct {
	mu          sync.RWMutex
	width       int
	height      int
	tiles       []Tile // column-major, see coord.ToIndex
	current     int
	instruments []*Instrument

	renderer FrameRenderer
	muter    Muter
	muted    bool
	onChange func(state string)
}

// NewGrid creates an empty grid playing through instruments
func NewGrid(width, height int, instruments []*Instrument) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("grid %dx%d: %w", width, height, ErrOutOfBounds)
	}
	if len(instruments) == 0 || len(instruments) > MaxInstruments {
		return nil, fmt.Errorf("%d instruments: %w", len(instruments), ErrInvalidIndex)
	}
	return &Grid{
		width:       width,
		height:      height,
		tiles:       make([]Tile, width*height),
		instruments: instruments,
	}, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// SetRenderer installs the per-frame renderer used by Tick
func (g *Grid) SetRenderer(r FrameRenderer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.renderer = r
}

// SetMuter connects mute to an output
func (g *Grid) SetMuter(m Muter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muter = m
}

// OnChange registers fn to receive the share string after every change.
// fn runs without the grid lock.
func (g *Grid) OnChange(fn func(state string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

func (g *Grid) tile(x, y int) *Tile {
	return &g.tiles[coord.ToIndex(x, y, g.height)]
}

// IsArmed reports whether (x, y) has a note under the current instrument
func (g *Grid) IsArmed(x, y int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.inBounds(x, y) {
		return false
	}
	return g.tile(x, y).HasNote(g.current)
}

// HasNote reports whether (x, y) has a note under instrument
func (g *Grid) HasNote(x, y, instrument int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.inBounds(x, y) {
		return false
	}
	return g.tile(x, y).HasNote(instrument)
}

// SetArmed arms or disarms (x, y) under the current instrument. Repeating
// the current state is a no-op.
func (g *Grid) SetArmed(x, y int, armed bool) error {
	g.mu.Lock()
	if !g.inBounds(x, y) {
		g.mu.Unlock()
		return fmt.Errorf("(%d,%d): %w", x, y, ErrOutOfBounds)
	}
	changed := g.setArmedLocked(x, y, armed)
	g.mu.Unlock()

	if changed {
		g.notify()
	}
	return nil
}

func (g *Grid) setArmedLocked(x, y int, armed bool) bool {
	t := g.tile(x, y)
	inst := g.instruments[g.current]
	if armed {
		if t.HasNote(g.current) {
			return false
		}
		t.setNote(g.current, inst.ScheduleNote(x, y))
		return true
	}
	id, ok := t.removeNote(g.current)
	if !ok {
		return false
	}
	inst.UnscheduleNote(id)
	return true
}

// Toggle flips (x, y) and returns the new state
func (g *Grid) Toggle(x, y int) (bool, error) {
	g.mu.Lock()
	if !g.inBounds(x, y) {
		g.mu.Unlock()
		return false, fmt.Errorf("(%d,%d): %w", x, y, ErrOutOfBounds)
	}
	armed := !g.tile(x, y).HasNote(g.current)
	g.setArmedLocked(x, y, armed)
	g.mu.Unlock()

	g.notify()
	return armed, nil
}

// SelectInstrument makes i the instrument that arm/disarm act on. Notes of
// other instruments keep playing.
func (g *Grid) SelectInstrument(i int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.instruments) {
		return fmt.Errorf("select %d of %d: %w", i, len(g.instruments), ErrInvalidIndex)
	}
	g.current = i
	debug.Log("grid", "instrument %d (%s)", i, g.instruments[i].Name())
	return nil
}

// CurrentInstrument returns the selected index
func (g *Grid) CurrentInstrument() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Instrument returns instrument i
func (g *Grid) Instrument(i int) (*Instrument, error) {
	if i < 0 || i >= len(g.instruments) {
		return nil, fmt.Errorf("instrument %d: %w", i, ErrInvalidIndex)
	}
	return g.instruments[i], nil
}

// Instruments returns every instrument in order
func (g *Grid) Instruments() []*Instrument {
	return g.instruments
}

// PlayheadColumn is the current instrument's playhead
func (g *Grid) PlayheadColumn() int {
	g.mu.RLock()
	inst := g.instruments[g.current]
	g.mu.RUnlock()
	return inst.PlayheadColumn()
}

// ClearAll disarms every tile for every instrument
func (g *Grid) ClearAll() {
	g.mu.Lock()
	for i := range g.tiles {
		g.tiles[i] = Tile{}
	}
	for _, inst := range g.instruments {
		inst.Reset()
	}
	g.mu.Unlock()

	debug.Log("grid", "cleared")
	g.notify()
}

// ArmedCells lists the cells holding a note for instrument, column-major
func (g *Grid) ArmedCells(instrument int) []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Cell
	for i := range g.tiles {
		if g.tiles[i].HasNote(instrument) {
			x, y := coord.FromIndex(i, g.height)
			out = append(out, Cell{X: x, Y: y})
		}
	}
	return out
}

// Snapshot is a consistent copy of the tiles for one frame
type Snapshot struct {
	Width, Height int
	Current       int
	Tiles         []Tile
}

// Armed reports whether (x, y) has a note under the snapshot's instrument
func (s *Snapshot) Armed(x, y int) bool {
	return s.Tiles[coord.ToIndex(x, y, s.Height)].HasNote(s.Current)
}

// Occupied reports whether any instrument has a note on (x, y)
func (s *Snapshot) Occupied(x, y int) bool {
	return !s.Tiles[coord.ToIndex(x, y, s.Height)].IsEmpty()
}

// HasNote reports whether (x, y) has a note under instrument
func (s *Snapshot) HasNote(x, y, instrument int) bool {
	return s.Tiles[coord.ToIndex(x, y, s.Height)].HasNote(instrument)
}

// Snapshot copies the tile state into dst (reusing its storage)
func (g *Grid) Snapshot(dst *Snapshot) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	dst.Width = g.width
	dst.Height = g.height
	dst.Current = g.current
	if cap(dst.Tiles) < len(g.tiles) {
		dst.Tiles = make([]Tile, len(g.tiles))
	}
	dst.Tiles = dst.Tiles[:len(g.tiles)]
	copy(dst.Tiles, g.tiles)
}

// Tick draws one frame
func (g *Grid) Tick(pointerX, pointerY float64) {
	g.mu.RLock()
	r := g.renderer
	g.mu.RUnlock()
	if r != nil {
		r.Update(g, pointerX, pointerY)
	}
}

// SetMuted mutes or unmutes the output
func (g *Grid) SetMuted(muted bool) {
	g.mu.Lock()
	g.muted = muted
	m := g.muter
	g.mu.Unlock()
	if m != nil {
		m.SetMuted(muted)
	}
}

func (g *Grid) Muted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.muted
}

func (g *Grid) notify() {
	g.mu.RLock()
	fn := g.onChange
	g.mu.RUnlock()
	if fn != nil {
		fn(g.Serialize())
	}
}
