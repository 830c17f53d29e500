package sequencer

import (
	"encoding/base64"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep"

	"tonegrid/audio"
	"tonegrid/transport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// silentRenderer renders a buffer of the right length with no sound
type silentRenderer struct{}

func (silentRenderer) Render(scale []audio.Note, _ audio.Timbre, _, noteOffset time.Duration) (*beep.Buffer, error) {
	rate := beep.SampleRate(1000)
	buf := beep.NewBuffer(beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2})
	buf.Append(beep.Silence(len(scale) * rate.N(noteOffset)))
	return buf, nil
}

const testLoop = 2 * time.Second

type rig struct {
	grid  *Grid
	tr    *transport.Transport
	clock *fakeClock
}

func newRig(t *testing.T, width, height int) *rig {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := transport.New(clock, testLoop)

	var insts []*Instrument
	for _, timbre := range audio.DefaultTimbres() {
		opts := DefaultInstrumentOptions(timbre)
		opts.Width, opts.Height = width, height
		inst, err := NewInstrument(tr, silentRenderer{}, opts)
		if err != nil {
			t.Fatalf("NewInstrument: %v", err)
		}
		insts = append(insts, inst)
	}
	g, err := NewGrid(width, height, insts)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return &rig{grid: g, tr: tr, clock: clock}
}

func TestTileSlots(t *testing.T) {
	var tile Tile
	if !tile.IsEmpty() {
		t.Fatal("zero tile not empty")
	}
	tile.setNote(0, 7)
	tile.setNote(1, 9)
	if tile.IsEmpty() || !tile.HasNote(0) || !tile.HasNote(1) {
		t.Fatalf("instruments should coexist: %v", tile.Instruments())
	}
	if id, ok := tile.removeNote(0); !ok || id != 7 {
		t.Errorf("removeNote(0) = %d, %v", id, ok)
	}
	if _, ok := tile.removeNote(0); ok {
		t.Error("second remove reported a note")
	}
	if tile.HasNote(-1) || tile.HasNote(MaxInstruments) {
		t.Error("out of range instrument reported a note")
	}
	tile.removeNote(1)
	if !tile.IsEmpty() {
		t.Error("tile not empty after removing all notes")
	}
}

func TestArmIsIdempotent(t *testing.T) {
	r := newRig(t, 16, 16)
	inst := r.grid.Instruments()[0]

	for i := 0; i < 3; i++ {
		if err := r.grid.SetArmed(4, 5, true); err != nil {
			t.Fatal(err)
		}
	}
	if !r.grid.IsArmed(4, 5) {
		t.Fatal("cell not armed")
	}
	if inst.Scheduled() != 1 || r.tr.Len() != 1 {
		t.Errorf("scheduled=%d transport=%d, want 1", inst.Scheduled(), r.tr.Len())
	}
	if inst.Polyphony(4) != 1 {
		t.Errorf("polyphony = %d, want 1", inst.Polyphony(4))
	}
}

func TestDisarmRestoresState(t *testing.T) {
	r := newRig(t, 16, 16)
	inst := r.grid.Instruments()[0]

	r.grid.SetArmed(3, 3, false) // no-op
	r.grid.SetArmed(3, 3, true)
	r.grid.SetArmed(3, 3, false)
	r.grid.SetArmed(3, 3, false)

	if r.grid.IsArmed(3, 3) {
		t.Error("cell still armed")
	}
	if inst.Scheduled() != 0 || inst.Polyphony(3) != 0 || r.tr.Len() != 0 {
		t.Errorf("leftover state: scheduled=%d poly=%d transport=%d",
			inst.Scheduled(), inst.Polyphony(3), r.tr.Len())
	}
}

func TestToggle(t *testing.T) {
	r := newRig(t, 8, 8)
	on, err := r.grid.Toggle(1, 2)
	if err != nil || !on || !r.grid.IsArmed(1, 2) {
		t.Fatalf("first toggle: on=%v err=%v", on, err)
	}
	on, _ = r.grid.Toggle(1, 2)
	if on || r.grid.IsArmed(1, 2) {
		t.Error("second toggle should disarm")
	}
	if _, err := r.grid.Toggle(8, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("out of bounds toggle err = %v", err)
	}
	if err := r.grid.SetArmed(0, -1, true); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("out of bounds SetArmed err = %v", err)
	}
	if r.grid.IsArmed(-1, 0) {
		t.Error("IsArmed out of bounds should be false")
	}
}

func TestSelectInstrument(t *testing.T) {
	r := newRig(t, 16, 16)
	r.grid.SetArmed(2, 2, true)

	if err := r.grid.SelectInstrument(2); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("SelectInstrument(2) err = %v, want ErrInvalidIndex", err)
	}
	if err := r.grid.SelectInstrument(-1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("SelectInstrument(-1) err = %v", err)
	}
	if r.grid.CurrentInstrument() != 0 {
		t.Fatal("failed selection changed the instrument")
	}

	if err := r.grid.SelectInstrument(1); err != nil {
		t.Fatal(err)
	}
	if r.grid.IsArmed(2, 2) {
		t.Error("instrument 1 sees instrument 0's note")
	}
	r.grid.SetArmed(2, 2, true)

	// both notes stay scheduled
	if r.tr.Len() != 2 {
		t.Errorf("transport has %d events, want 2", r.tr.Len())
	}
	if !r.grid.HasNote(2, 2, 0) || !r.grid.HasNote(2, 2, 1) {
		t.Error("instruments should coexist on one tile")
	}

	r.grid.SetArmed(2, 2, false)
	if !r.grid.HasNote(2, 2, 0) {
		t.Error("disarming instrument 1 removed instrument 0's note")
	}
}

func TestShareStringScenario(t *testing.T) {
	r := newRig(t, 16, 16)
	if got := r.grid.Serialize(); got != "" {
		t.Fatalf("empty grid = %q", got)
	}

	r.grid.SetArmed(0, 0, true)
	r.grid.SetArmed(0, 15, true)

	want := make([]byte, 32)
	want[0] = 0x80
	want[1] = 0x01
	if got := r.grid.Serialize(); got != base64.StdEncoding.EncodeToString(want) {
		t.Errorf("Serialize = %q, want %q", got, base64.StdEncoding.EncodeToString(want))
	}

	r.grid.ClearAll()
	if got := r.grid.Serialize(); got != "" {
		t.Errorf("after ClearAll = %q", got)
	}
	for _, inst := range r.grid.Instruments() {
		if inst.Scheduled() != 0 || inst.Polyphony(0) != 0 {
			t.Errorf("%s kept state after ClearAll", inst.Name())
		}
	}
	if r.tr.Len() != 0 {
		t.Errorf("transport kept %d events", r.tr.Len())
	}
}

func TestSerializeCountsAnyInstrument(t *testing.T) {
	r := newRig(t, 8, 8)
	r.grid.SelectInstrument(1)
	r.grid.SetArmed(0, 1, true)
	if r.grid.Serialize() == "" {
		t.Error("note under instrument 1 missing from share string")
	}
}

func occupancy(g *Grid) []bool {
	var s Snapshot
	g.Snapshot(&s)
	out := make([]bool, len(s.Tiles))
	for i := range s.Tiles {
		out[i] = !s.Tiles[i].IsEmpty()
	}
	return out
}

func TestShareStringRoundTrip(t *testing.T) {
	sizes := []struct{ w, h int }{{16, 16}, {5, 3}, {7, 9}}
	rng := rand.New(rand.NewSource(42))

	for _, sz := range sizes {
		src := newRig(t, sz.w, sz.h)
		for x := 0; x < sz.w; x++ {
			for y := 0; y < sz.h; y++ {
				if rng.Intn(3) == 0 {
					src.grid.SetArmed(x, y, true)
				}
			}
		}
		state := src.grid.Serialize()

		dst := newRig(t, sz.w, sz.h)
		dst.grid.SetArmed(0, 0, true) // must be cleared if not in state
		if err := dst.grid.Deserialize(state); err != nil {
			t.Fatalf("%dx%d: %v", sz.w, sz.h, err)
		}

		a, b := occupancy(src.grid), occupancy(dst.grid)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%dx%d: cell %d differs after round trip", sz.w, sz.h, i)
			}
		}
		if got := dst.grid.Serialize(); got != state {
			t.Errorf("%dx%d: re-serialized %q, want %q", sz.w, sz.h, got, state)
		}
	}
}

func TestDeserializeShortPayload(t *testing.T) {
	r := newRig(t, 16, 16)
	r.grid.SetArmed(10, 10, true)

	// one byte: only the first 8 cells of column 0 are defined
	if err := r.grid.Deserialize(base64.StdEncoding.EncodeToString([]byte{0xC0})); err != nil {
		t.Fatal(err)
	}
	if !r.grid.IsArmed(0, 0) || !r.grid.IsArmed(0, 1) {
		t.Error("set bits not armed")
	}
	if r.grid.IsArmed(10, 10) {
		t.Error("undefined bits should leave cells unarmed")
	}
	if got := len(r.grid.ArmedCells(0)); got != 2 {
		t.Errorf("armed %d cells, want 2", got)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	r := newRig(t, 16, 16)
	r.grid.SetArmed(5, 5, true)

	err := r.grid.Deserialize("gA==!!!!")
	if !errors.Is(err, ErrMalformedState) {
		t.Errorf("err = %v, want ErrMalformedState", err)
	}
	if !r.grid.IsArmed(0, 0) {
		t.Error("decoded prefix not applied")
	}

	if err := r.grid.Deserialize(""); err != nil {
		t.Fatal(err)
	}
	if r.grid.Serialize() != "" {
		t.Error("empty string should disarm everything")
	}
}

func TestDeserializeLenientAlphabet(t *testing.T) {
	r := newRig(t, 8, 8)
	r.grid.SetArmed(0, 2, true)
	r.grid.SetArmed(7, 7, true)
	state := r.grid.Serialize()

	raw := base64.RawURLEncoding.EncodeToString(mustDecode(t, state))
	other := newRig(t, 8, 8)
	if err := other.grid.Deserialize(raw); err != nil {
		t.Fatalf("unpadded url alphabet: %v", err)
	}
	if other.grid.Serialize() != state {
		t.Errorf("got %q, want %q", other.grid.Serialize(), state)
	}
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPackBitsOrder(t *testing.T) {
	bits := make([]bool, 10)
	bits[0], bits[7], bits[8] = true, true, true
	got := packBits(bits)
	if len(got) != 2 || got[0] != 0x81 || got[1] != 0x80 {
		t.Errorf("packBits = % x", got)
	}
	back := unpackBits(got, 10)
	for i := range bits {
		if back[i] != bits[i] {
			t.Errorf("bit %d: %v != %v", i, back[i], bits[i])
		}
	}
}

func TestOnChangeEchoesState(t *testing.T) {
	r := newRig(t, 16, 16)
	var got []string
	r.grid.OnChange(func(s string) { got = append(got, s) })

	r.grid.SetArmed(0, 0, true)
	r.grid.SetArmed(0, 0, true) // unchanged, no echo
	r.grid.ClearAll()

	if len(got) != 2 {
		t.Fatalf("echoed %d times: %q", len(got), got)
	}
	if got[0] == "" || got[1] != "" {
		t.Errorf("echo = %q", got)
	}
}

type fakeMuter struct{ muted bool }

func (m *fakeMuter) SetMuted(v bool) { m.muted = v }

type countingRenderer struct {
	frames int
	px, py float64
}

func (c *countingRenderer) Update(_ *Grid, px, py float64) {
	c.frames++
	c.px, c.py = px, py
}

func TestTickAndMute(t *testing.T) {
	r := newRig(t, 4, 4)
	r.grid.Tick(1, 1) // no renderer yet

	cr := &countingRenderer{}
	r.grid.SetRenderer(cr)
	r.grid.Tick(10, 20)
	if cr.frames != 1 || cr.px != 10 || cr.py != 20 {
		t.Errorf("renderer got %+v", cr)
	}

	m := &fakeMuter{}
	r.grid.SetMuter(m)
	r.grid.SetMuted(true)
	if !m.muted || !r.grid.Muted() {
		t.Error("mute not forwarded")
	}
}

func TestConcurrentArmAndSnapshot(t *testing.T) {
	r := newRig(t, 16, 16)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.grid.Toggle(i%16, (i/16)%16)
		}
	}()
	go func() {
		defer wg.Done()
		var s Snapshot
		for i := 0; i < 500; i++ {
			r.grid.Snapshot(&s)
			_ = s.Armed(i%16, 0)
		}
	}()
	wg.Wait()

	// every scheduled event belongs to an armed tile
	inst := r.grid.Instruments()[0]
	if got, want := inst.Scheduled(), len(r.grid.ArmedCells(0)); got != want {
		t.Errorf("scheduled %d, armed %d", got, want)
	}
}
