package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"tonegrid/midi"
)

type fakeController struct {
	mu      sync.Mutex
	pads    chan midi.PadEvent
	notes   chan midi.NoteEvent
	batches [][]midi.LEDUpdate
}

func newFakeController() *fakeController {
	return &fakeController{pads: make(chan midi.PadEvent, 8), notes: make(chan midi.NoteEvent)}
}

func (f *fakeController) ID() string                                { return "fake" }
func (f *fakeController) Type() midi.ControllerType                 { return midi.ControllerLaunchpad }
func (f *fakeController) PadEvents() <-chan midi.PadEvent           { return f.pads }
func (f *fakeController) NoteEvents() <-chan midi.NoteEvent         { return f.notes }
func (f *fakeController) SetLEDRGB(int, int, [3]uint8, uint8) error { return nil }
func (f *fakeController) Close() error                              { return nil }

func (f *fakeController) SetLEDBatch(u []midi.LEDUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]midi.LEDUpdate(nil), u...))
	return nil
}

func (f *fakeController) lastBatch() []midi.LEDUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func TestHandlePadTogglesGrid(t *testing.T) {
	r := newRig(t, 16, 16)
	m := NewManager(r.grid, r.tr, 120)

	// bottom-left pad is the viewport's lowest row
	m.HandlePad(0, 0)
	if !r.grid.IsArmed(0, 7) {
		t.Error("pad (0,0) should toggle cell (0,7)")
	}

	// page right and down, then press the top-left pad
	m.HandlePad(8, midi.ArrowRight)
	m.HandlePad(8, midi.ArrowDown)
	m.HandlePad(7, 0)
	if !r.grid.IsArmed(8, 8) {
		t.Error("paged pad should toggle cell (8,8)")
	}

	// cannot page past the grid
	m.HandlePad(8, midi.ArrowRight)
	m.HandlePad(7, 7)
	if !r.grid.IsArmed(15, 8) {
		t.Error("page moved past the grid edge")
	}

	// scene buttons select instruments
	m.HandlePad(6, 8)
	if r.grid.CurrentInstrument() != 1 {
		t.Errorf("instrument = %d, want 1", r.grid.CurrentInstrument())
	}
	m.HandlePad(2, 8) // no such instrument
	if r.grid.CurrentInstrument() != 1 {
		t.Error("invalid scene button changed the instrument")
	}
}

func TestManagerTracksState(t *testing.T) {
	r := newRig(t, 16, 16)
	m := NewManager(r.grid, r.tr, 120)
	var echoed []string
	m.OnStateChange(func(s string) { echoed = append(echoed, s) })

	if m.State() != "" {
		t.Fatalf("initial state %q", m.State())
	}
	m.Toggle(0, 0)
	if m.State() == "" || len(echoed) != 1 || echoed[0] != m.State() {
		t.Errorf("state %q echoed %q", m.State(), echoed)
	}
	m.ClearAll()
	if m.State() != "" {
		t.Errorf("state after clear %q", m.State())
	}
	select {
	case <-m.UpdateChan:
	default:
		t.Error("no UI update signalled")
	}
}

func TestFlushLEDsDiffs(t *testing.T) {
	r := newRig(t, 16, 16)
	m := NewManager(r.grid, r.tr, 120)
	ctrl := newFakeController()
	m.SetController(ctrl)

	m.flushLEDs()
	first := ctrl.lastBatch()
	if len(first) < 64 {
		t.Fatalf("first flush sent %d updates, want the full grid", len(first))
	}

	m.flushLEDs()
	if got := len(ctrl.batches); got != 1 {
		t.Errorf("unchanged flush sent a batch (%d batches)", got)
	}

	m.HandlePad(3, 3)
	m.flushLEDs()
	diff := ctrl.lastBatch()
	if len(diff) != 1 || diff[0].Row != 3 || diff[0].Col != 3 || diff[0].Color != ColorArmed {
		t.Errorf("diff = %+v", diff)
	}
}

func TestRenderLEDsPlayhead(t *testing.T) {
	r := newRig(t, 16, 16)
	m := NewManager(r.grid, r.tr, 120)
	r.grid.SetArmed(0, 7, true)
	r.tr.Start()

	find := func(leds []LEDState, row, col int) LEDState {
		for _, l := range leds {
			if l.Row == row && l.Col == col {
				return l
			}
		}
		t.Fatalf("no LED at %d,%d", row, col)
		return LEDState{}
	}

	leds := m.RenderLEDs()
	if c := find(leds, 0, 0).Color; c != ColorPlayhead {
		t.Errorf("armed cell on playhead = %v", c)
	}
	if c := find(leds, 5, 0).Color; c != colorColumn {
		t.Errorf("empty cell on playhead = %v", c)
	}

	r.clock.Advance(testLoop / 16)
	leds = m.RenderLEDs()
	if c := find(leds, 0, 0).Color; c != ColorArmed {
		t.Errorf("armed cell off playhead = %v", c)
	}
}

func TestRuntimeStartStop(t *testing.T) {
	r := newRig(t, 4, 4)
	m := NewManager(r.grid, r.tr, 120)
	m.StartRuntime(context.Background())
	if !r.tr.Running() {
		t.Error("transport not started")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung")
	}
	if r.tr.Running() {
		t.Error("transport still running")
	}
}

func TestHandleNoteArmsAtPlayhead(t *testing.T) {
	r := newRig(t, 16, 16)
	m := NewManager(r.grid, r.tr, 120)
	r.tr.Start()
	r.clock.Advance(3 * testLoop / 16)

	m.HandleNote(60) // lowest row, B#3
	if !r.grid.IsArmed(3, 15) {
		t.Errorf("note 60 should arm (3,15); armed: %v", r.grid.ArmedCells(0))
	}
	m.HandleNote(61) // not in the scale
	if got := len(r.grid.ArmedCells(0)); got != 1 {
		t.Errorf("armed %d cells, want 1", got)
	}
}

func TestPatternCollectsArmedCells(t *testing.T) {
	r := newRig(t, 16, 16)
	m := NewManager(r.grid, r.tr, 90)

	r.grid.SetArmed(3, 2, true)
	if err := r.grid.SelectInstrument(1); err != nil {
		t.Fatal(err)
	}
	r.grid.SetArmed(5, 0, true)

	p := m.Pattern()
	if p.Steps != 16 || p.BPM != 90 {
		t.Errorf("steps=%d bpm=%v, want 16 and 90", p.Steps, p.BPM)
	}
	if len(p.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(p.Tracks))
	}

	first := p.Tracks[0]
	if len(first.Notes) != 1 || first.Notes[0].Step != 3 {
		t.Fatalf("track 0 notes = %+v", first.Notes)
	}
	inst, _ := r.grid.Instrument(0)
	if first.Notes[0].Key != inst.MIDINote(2) {
		t.Errorf("key = %d, want %d", first.Notes[0].Key, inst.MIDINote(2))
	}
	// one note of sixteen: gain is close to the loud end
	if v := first.Notes[0].Velocity; v != 96 {
		t.Errorf("velocity = %d, want 96", v)
	}
	if p.Tracks[1].Channel != 1 || p.Tracks[1].Notes[0].Step != 5 {
		t.Errorf("track 1 = %+v", p.Tracks[1])
	}
}
