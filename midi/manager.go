package midi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tonegrid/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// DeviceEvent reports a controller appearing or going away
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller // nil on disconnect
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// PortFilter decides whether a newly seen input port becomes a controller.
// It is asked once per plug-in.
type PortFilter func(portName string) bool

// portListTimeout bounds one port enumeration; CoreMIDI can hang.
const portListTimeout = 3 * time.Second

// DeviceManager polls the MIDI ports, opens the ones tonegrid can drive and
// reports hot-plug changes on Events.
type DeviceManager struct {
	allow    PortFilter
	pollRate time.Duration
	events   chan DeviceEvent

	mu          sync.RWMutex
	controllers map[string]Controller
	refused     map[string]bool // ports the filter turned down while plugged in
}

// NewDeviceManager returns a manager that opens every recognised port for
// which allow returns true. A nil allow accepts everything.
func NewDeviceManager(allow PortFilter) *DeviceManager {
	return &DeviceManager{
		allow:       allow,
		pollRate:    time.Second,
		events:      make(chan DeviceEvent, 16),
		controllers: make(map[string]Controller),
		refused:     make(map[string]bool),
	}
}

// Events is closed when Run returns
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers keyed by port name
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		out[k] = v
	}
	return out
}

// First returns any connected controller of the given kind, or nil
func (dm *DeviceManager) First(kind ControllerType) Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == kind {
			return c
		}
	}
	return nil
}

// Run polls until ctx is done, then closes every controller.
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan()
	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	ins, outs, ok := listPorts(portListTimeout)
	if !ok {
		debug.LogEvery(10, "midi", "port list timed out; try: sudo killall coreaudiod midiserver")
		return
	}

	seen := make(map[string]bool, len(ins))
	for _, in := range ins {
		id := in.String()
		kind := classifyPort(id)
		if kind == ControllerUnknown {
			continue
		}
		seen[id] = true
		if !dm.admit(id) {
			continue
		}

		c, err := openController(kind, id, in, outs)
		if err != nil {
			debug.Log("midi", "open %s: %v", id, err)
			continue
		}
		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()
		dm.emit(DeviceEvent{Type: DeviceConnected, Controller: c, ID: id})
	}

	for _, id := range dm.forget(seen) {
		dm.emit(DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

// admit reports whether id should be opened now. Ports already open or
// already refused are skipped without consulting the filter again.
func (dm *DeviceManager) admit(id string) bool {
	dm.mu.RLock()
	_, open := dm.controllers[id]
	refused := dm.refused[id]
	dm.mu.RUnlock()
	if open || refused {
		return false
	}
	if dm.allow != nil && !dm.allow(id) {
		debug.Log("midi", "ignoring %s", id)
		dm.mu.Lock()
		dm.refused[id] = true
		dm.mu.Unlock()
		return false
	}
	return true
}

// forget closes controllers whose port vanished and returns their ids.
// Refusals are dropped too so a replugged port is asked about again.
func (dm *DeviceManager) forget(seen map[string]bool) []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for id := range dm.refused {
		if !seen[id] {
			delete(dm.refused, id)
		}
	}
	var gone []string
	for id, c := range dm.controllers {
		if seen[id] {
			continue
		}
		c.Close()
		delete(dm.controllers, id)
		gone = append(gone, id)
	}
	return gone
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

// emit drops the event when nobody is listening
func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
		debug.Log("midi", "device event dropped: %s", ev.ID)
	}
}

func listPorts(timeout time.Duration) (drivers.Ins, drivers.Outs, bool) {
	type ports struct {
		ins  drivers.Ins
		outs drivers.Outs
	}
	ch := make(chan ports, 1)
	go func() {
		ch <- ports{gomidi.GetInPorts(), gomidi.GetOutPorts()}
	}()
	select {
	case p := <-ch:
		return p.ins, p.outs, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}

func openController(kind ControllerType, id string, in drivers.In, outs drivers.Outs) (Controller, error) {
	switch kind {
	case ControllerLaunchpad:
		out, _ := matchOutput(outs, id)
		lp, err := NewLaunchpadController(id, in, out)
		if err != nil {
			return nil, err
		}
		return lp, nil
	case ControllerKeyboard:
		kb, err := NewKeyboardController(id, in)
		if err != nil {
			return nil, err
		}
		return kb, nil
	}
	return nil, fmt.Errorf("no driver for %s", id)
}

// classifyPort maps an input port name to the controller that drives it.
// Loopback and system ports, and a Launchpad's non-MIDI (DAW) ports, are
// ControllerUnknown. Anything else that sends notes is a keyboard.
func classifyPort(name string) ControllerType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "through"), strings.Contains(n, "timer"), strings.Contains(n, "announce"):
		return ControllerUnknown
	case strings.Contains(n, "launchpad"):
		if strings.Contains(n, "midi") {
			return ControllerLaunchpad
		}
		return ControllerUnknown
	}
	return ControllerKeyboard
}

// matchOutput finds the output port whose name matches an input port's,
// ignoring case.
func matchOutput[T fmt.Stringer](outs []T, name string) (T, bool) {
	for _, out := range outs {
		if strings.EqualFold(out.String(), name) {
			return out, true
		}
	}
	var zero T
	return zero, false
}
