package sequencer

import (
	"context"
	"sync"
	"time"

	"tonegrid/debug"
	"tonegrid/midi"
	"tonegrid/transport"
)

// LEDState describes the state of a single LED
type LEDState struct {
	Row, Col int
	Color    [3]uint8 // RGB color - controller maps to its palette
	Channel  uint8    // 0=static, 2=pulse
}

// Launchpad grid is 8x8; larger grids are paged
const padSize = 8

// LED refresh rate
const ledFPS = 30

// transport polling resolution
const transportResolution = time.Millisecond

var (
	ColorArmed     = [3]uint8{234, 73, 116}  // pink
	colorArmedAlt  = [3]uint8{253, 157, 110} // orange - second instrument
	ColorPlayhead  = [3]uint8{255, 255, 255}
	colorColumn    = [3]uint8{40, 10, 30}
	ColorOtherInst = [3]uint8{80, 30, 50}
	colorNav       = [3]uint8{148, 18, 126}
	colorOff       = [3]uint8{0, 0, 0}
)

// Manager runs the grid: it owns the transport loop, mirrors the grid onto
// a Launchpad and routes pad presses back as toggles.
type Manager struct {
	grid      *Grid
	transport *transport.Transport
	tempo     int

	controller midi.Controller
	page       [2]int // viewport origin in grid cells (x, y)

	mu       sync.Mutex
	ledDirty bool                // true if LEDs need refresh
	prevLEDs map[[2]int]LEDState // for diffing
	state    string              // last share string
	onState  func(string)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager wraps a grid and the transport its instruments schedule on
func NewManager(grid *Grid, tr *transport.Transport, tempo int) *Manager {
	m := &Manager{
		grid:       grid,
		transport:  tr,
		tempo:      tempo,
		prevLEDs:   make(map[[2]int]LEDState),
		UpdateChan: make(chan struct{}, 1),
	}
	grid.OnChange(m.stateChanged)
	m.state = grid.Serialize()
	return m
}

func (m *Manager) Grid() *Grid                     { return m.grid }
func (m *Manager) Transport() *transport.Transport { return m.transport }
func (m *Manager) Tempo() int                      { return m.tempo }

// OnStateChange registers fn for every new share string
func (m *Manager) OnStateChange(fn func(state string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

// State returns the latest share string
func (m *Manager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) stateChanged(state string) {
	m.mu.Lock()
	m.state = state
	fn := m.onState
	m.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	m.notifyUpdate()
}

// StartRuntime starts the transport and the runtime goroutines
func (m *Manager) StartRuntime(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.transport.Start()

	m.wg.Add(3)
	go func() {
		defer m.wg.Done()
		m.transport.Run(ctx, transportResolution)
	}()
	go func() {
		defer m.wg.Done()
		m.ledLoop(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.playheadLoop(ctx)
	}()
}

// Stop halts the runtime goroutines and the transport
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
		m.cancel = nil
	}
	m.transport.Stop()
}

// SetController sets the MIDI controller for pads and LED feedback
func (m *Manager) SetController(c midi.Controller) {
	debug.Log("ctrl", "SetController called, resetting diff state")
	m.mu.Lock()
	m.controller = c
	m.prevLEDs = make(map[[2]int]LEDState) // reset state - diff will handle clearing
	m.mu.Unlock()

	if c == nil {
		return
	}
	m.markLEDsDirty()
	go func() {
		for evt := range c.PadEvents() {
			m.HandlePad(evt.Row, evt.Col)
		}
	}()
	go func() {
		for evt := range c.NoteEvents() {
			m.HandleNote(evt.Note)
		}
	}()
}

// AddKeyboard routes a keyboard's notes without taking over the LEDs
func (m *Manager) AddKeyboard(c midi.Controller) {
	go func() {
		for evt := range c.NoteEvents() {
			m.HandleNote(evt.Note)
		}
	}()
}

// HandleNote arms the row playing note at the playhead column. Notes
// outside the scale are ignored.
func (m *Manager) HandleNote(note uint8) {
	inst, err := m.grid.Instrument(m.grid.CurrentInstrument())
	if err != nil {
		return
	}
	for row := range inst.Scale() {
		if inst.MIDINote(row) == note {
			col := m.grid.PlayheadColumn()
			if err := m.grid.SetArmed(col, row, true); err != nil {
				debug.Log("note", "arm %d,%d: %v", col, row, err)
			}
			m.notifyUpdate()
			return
		}
	}
	debug.LogEvery(20, "note", "note %d not in scale", note)
}

// Controller returns the attached controller (may be nil)
func (m *Manager) Controller() midi.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controller
}

// markLEDsDirty flags that LEDs need refresh
func (m *Manager) markLEDsDirty() {
	m.mu.Lock()
	m.ledDirty = true
	m.mu.Unlock()
}

// ledLoop runs at fixed FPS and flushes LED updates
func (m *Manager) ledLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			dirty := m.ledDirty
			m.ledDirty = false
			m.mu.Unlock()

			if dirty {
				m.flushLEDs()
			}
		}
	}
}

// playheadLoop refreshes LEDs and the UI when the playhead changes column
func (m *Manager) playheadLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if col := m.grid.PlayheadColumn(); col != last {
				last = col
				m.notifyUpdate()
			}
		}
	}
}

// flushLEDs sends only changed LEDs to the controller (diffing + batching)
func (m *Manager) flushLEDs() {
	m.mu.Lock()
	ctrl := m.controller
	m.mu.Unlock()
	if ctrl == nil {
		return
	}

	newLEDs := m.RenderLEDs()
	newMap := make(map[[2]int]LEDState, len(newLEDs))

	var updates []midi.LEDUpdate

	m.mu.Lock()
	for _, led := range newLEDs {
		key := [2]int{led.Row, led.Col}
		newMap[key] = led

		// Only send if changed
		if prev, ok := m.prevLEDs[key]; !ok || prev != led {
			updates = append(updates, midi.LEDUpdate{
				Row:     led.Row,
				Col:     led.Col,
				Color:   led.Color,
				Channel: led.Channel,
			})
		}
	}

	// Clear LEDs that are no longer present
	for key := range m.prevLEDs {
		if _, ok := newMap[key]; !ok {
			updates = append(updates, midi.LEDUpdate{Row: key[0], Col: key[1], Color: colorOff})
		}
	}
	m.prevLEDs = newMap
	m.mu.Unlock()

	if len(updates) > 0 {
		debug.LogEvery(30, "led", "flushLEDs: batch=%d", len(updates))
		if err := ctrl.SetLEDBatch(updates); err != nil {
			debug.Log("led", "send failed: %v", err)
		}
	}
}

// padToCell maps a pad to a grid cell. Pad row 0 is the bottom of the
// viewport, grid row 0 its top.
func (m *Manager) padToCell(row, col int) (x, y int) {
	m.mu.Lock()
	page := m.page
	m.mu.Unlock()
	return page[0] + col, page[1] + (padSize - 1 - row)
}

// RenderLEDs draws the visible 8x8 window plus navigation and instrument
// buttons.
func (m *Manager) RenderLEDs() []LEDState {
	var snap Snapshot
	m.grid.Snapshot(&snap)
	playhead := m.grid.PlayheadColumn()

	armedColor := ColorArmed
	if snap.Current == 1 {
		armedColor = colorArmedAlt
	}

	var leds []LEDState
	for row := 0; row < padSize; row++ {
		for col := 0; col < padSize; col++ {
			x, y := m.padToCell(row, col)
			color := colorOff
			channel := midi.ChannelStatic

			if x < snap.Width && y < snap.Height {
				switch {
				case snap.Armed(x, y) && x == playhead:
					color = ColorPlayhead
				case snap.Armed(x, y):
					color = armedColor
				case snap.Occupied(x, y):
					color = ColorOtherInst
				case x == playhead:
					color = colorColumn
				}
			}
			leds = append(leds, LEDState{Row: row, Col: col, Color: color, Channel: channel})
		}
	}

	// Top row arrows light up when there is more grid that way
	m.mu.Lock()
	page := m.page
	m.mu.Unlock()
	nav := map[int]bool{
		midi.ArrowUp:    page[1] > 0,
		midi.ArrowDown:  page[1]+padSize < snap.Height,
		midi.ArrowLeft:  page[0] > 0,
		midi.ArrowRight: page[0]+padSize < snap.Width,
	}
	for col, on := range nav {
		if on {
			leds = append(leds, LEDState{Row: padSize, Col: col, Color: colorNav})
		}
	}

	// Scene buttons select instruments, top down
	for i := range m.grid.Instruments() {
		color := ColorOtherInst
		if i == snap.Current {
			color = ColorPlayhead
		}
		leds = append(leds, LEDState{Row: padSize - 1 - i, Col: padSize, Color: color})
	}

	return leds
}

// HandlePad routes a pad press
func (m *Manager) HandlePad(row, col int) {
	switch {
	case row == padSize:
		m.scroll(col)
	case col == padSize:
		if err := m.grid.SelectInstrument(padSize - 1 - row); err != nil {
			debug.Log("pad", "scene %d: %v", row, err)
			return
		}
	default:
		x, y := m.padToCell(row, col)
		if _, err := m.grid.Toggle(x, y); err != nil {
			debug.Log("pad", "pad %d,%d: %v", row, col, err)
			return
		}
	}
	m.notifyUpdate()
}

func (m *Manager) scroll(arrow int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, h := m.grid.Width(), m.grid.Height()
	switch arrow {
	case midi.ArrowUp:
		m.page[1] = max(0, m.page[1]-padSize)
	case midi.ArrowDown:
		if m.page[1]+padSize < h {
			m.page[1] += padSize
		}
	case midi.ArrowLeft:
		m.page[0] = max(0, m.page[0]-padSize)
	case midi.ArrowRight:
		if m.page[0]+padSize < w {
			m.page[0] += padSize
		}
	}
}

// Toggle flips a cell from the UI
func (m *Manager) Toggle(x, y int) error {
	_, err := m.grid.Toggle(x, y)
	return err
}

// SelectInstrument switches the instrument arm/disarm act on
func (m *Manager) SelectInstrument(i int) error {
	if err := m.grid.SelectInstrument(i); err != nil {
		return err
	}
	m.notifyUpdate()
	return nil
}

// ClearAll disarms everything
func (m *Manager) ClearAll() {
	m.grid.ClearAll()
}

// ToggleMute flips the output mute and returns the new state
func (m *Manager) ToggleMute() bool {
	muted := !m.grid.Muted()
	m.grid.SetMuted(muted)
	m.notifyUpdate()
	return muted
}

// Pattern collects every instrument's armed cells for SMF export. Each
// instrument gets its own channel.
func (m *Manager) Pattern() midi.Pattern {
	p := midi.Pattern{Steps: m.grid.Width(), BPM: float64(m.tempo)}
	for idx, inst := range m.grid.Instruments() {
		track := midi.PatternTrack{Name: inst.Name(), Channel: uint8(idx % 16)}
		for _, c := range m.grid.ArmedCells(idx) {
			track.Notes = append(track.Notes, midi.PatternNote{
				Step:     c.X,
				Key:      inst.MIDINote(c.Y),
				Velocity: inst.ColumnVelocity(c.X),
			})
		}
		p.Tracks = append(p.Tracks, track)
	}
	return p
}

// notifyUpdate refreshes LEDs and notifies TUI
func (m *Manager) notifyUpdate() {
	m.markLEDsDirty()
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
