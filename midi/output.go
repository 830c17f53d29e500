package midi

import (
	"fmt"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"tonegrid/debug"
)

// Output plays notes on one channel of a MIDI out port. Each note is a
// NoteOn followed by a NoteOff after its length.
type Output struct {
	send    func(gomidi.Message) error
	channel uint8

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
}

// OpenOutput finds the out port by name and opens it. channel is 1-16.
func OpenOutput(portName string, channel int) (*Output, error) {
	if channel < 1 || channel > 16 {
		return nil, fmt.Errorf("midi channel %d out of range", channel)
	}
	port, err := gomidi.FindOutPort(portName)
	if err != nil {
		return nil, fmt.Errorf("find port %q: %w", portName, err)
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open port %q: %w", portName, err)
	}
	debug.Log("midi-out", "opened %s ch=%d", portName, channel)
	return NewOutput(send, uint8(channel-1)), nil
}

// NewOutput wraps a sender. channel is 0-based.
func NewOutput(send func(gomidi.Message) error, channel uint8) *Output {
	return &Output{
		send:    send,
		channel: channel,
		pending: make(map[*time.Timer]struct{}),
	}
}

// PlayNote sends NoteOn now and NoteOff after length
func (o *Output) PlayNote(note, velocity uint8, length time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	if err := o.send(gomidi.NoteOn(o.channel, note, velocity)); err != nil {
		debug.LogEvery(100, "midi-out", "note on failed: %v", err)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(length, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.pending, t)
		if !o.closed {
			o.send(gomidi.NoteOff(o.channel, note))
		}
	})
	o.pending[t] = struct{}{}
}

// Close releases every sounding note
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	for t := range o.pending {
		t.Stop()
	}
	o.pending = nil
	// CC 123: all notes off
	return o.send(gomidi.ControlChange(o.channel, 123, 0))
}
