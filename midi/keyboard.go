package midi

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// KeyboardController is an input-only note source. Played notes arm the
// matching row at the playhead.
type KeyboardController struct {
	id       string
	stopFunc func()

	closeOnce sync.Once
	padChan   chan PadEvent
	noteChan  chan NoteEvent
}

// NewKeyboardController listens on inPort
func NewKeyboardController(id string, inPort drivers.In) (*KeyboardController, error) {
	kb := &KeyboardController{
		id:       id,
		padChan:  make(chan PadEvent),
		noteChan: make(chan NoteEvent, 32),
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, kb.receive)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		kb.stopFunc = stop
	}
	return kb, nil
}

func (kb *KeyboardController) receive(msg gomidi.Message, _ int32) {
	var channel, note, velocity uint8
	if msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0 {
		select {
		case kb.noteChan <- NoteEvent{Note: note, Velocity: velocity, Channel: channel}:
		default:
		}
	}
}

func (kb *KeyboardController) ID() string                   { return kb.id }
func (kb *KeyboardController) Type() ControllerType         { return ControllerKeyboard }
func (kb *KeyboardController) PadEvents() <-chan PadEvent   { return kb.padChan }
func (kb *KeyboardController) NoteEvents() <-chan NoteEvent { return kb.noteChan }

// keyboards have no LEDs
func (kb *KeyboardController) SetLEDRGB(int, int, [3]uint8, uint8) error { return nil }
func (kb *KeyboardController) SetLEDBatch([]LEDUpdate) error             { return nil }

func (kb *KeyboardController) Close() error {
	kb.closeOnce.Do(func() {
		if kb.stopFunc != nil {
			kb.stopFunc()
		}
		close(kb.padChan)
		close(kb.noteChan)
	})
	return nil
}
