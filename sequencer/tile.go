package sequencer

import "tonegrid/transport"

// MaxInstruments bounds how many instruments a grid can carry
const MaxInstruments = 8

type noteSlot struct {
	id  transport.EventID
	set bool
}

// Tile records which instruments have a scheduled note on one cell. At most
// one note per instrument.
type Tile struct {
	slots [MaxInstruments]noteSlot
}

// HasNote reports whether instrument has a note here
func (t *Tile) HasNote(instrument int) bool {
	if instrument < 0 || instrument >= MaxInstruments {
		return false
	}
	return t.slots[instrument].set
}

// Note returns the event scheduled for instrument
func (t *Tile) Note(instrument int) (transport.EventID, bool) {
	if !t.HasNote(instrument) {
		return 0, false
	}
	return t.slots[instrument].id, true
}

func (t *Tile) setNote(instrument int, id transport.EventID) {
	t.slots[instrument] = noteSlot{id: id, set: true}
}

func (t *Tile) removeNote(instrument int) (transport.EventID, bool) {
	id, ok := t.Note(instrument)
	if ok {
		t.slots[instrument] = noteSlot{}
	}
	return id, ok
}

// IsEmpty is true when no instrument has a note here
func (t *Tile) IsEmpty() bool {
	for _, s := range t.slots {
		if s.set {
			return false
		}
	}
	return true
}

// Instruments lists the instruments with a note on this tile
func (t *Tile) Instruments() []int {
	var out []int
	for i, s := range t.slots {
		if s.set {
			out = append(out, i)
		}
	}
	return out
}
