// Package transport is the looping timeline notes are scheduled against.
// It loops one fixed period forever and is polled, never pushed: callers
// read Elapsed whenever they need the current position.
package transport

import (
	"context"
	"sort"
	"sync"
	"time"

	"tonegrid/debug"
)

// Clock supplies the current time. Tests drive the transport with a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// EventID identifies a scheduled callback. IDs are never reused.
type EventID int64

// Callback runs when an event comes due. id is the handle Schedule returned
// and at is the transport time (elapsed since Start) the occurrence was
// scheduled for.
type Callback func(id EventID, at time.Duration)

type event struct {
	offset time.Duration
	fn     Callback
}

// Transport fires each scheduled callback once per loop at its offset
type Transport struct {
	mu    sync.Mutex
	clock Clock
	loop  time.Duration

	running    bool
	t0         time.Time
	dispatched time.Duration // occurrences at or before this time have fired

	events map[EventID]*event
	nextID EventID
}

// New creates a stopped transport looping every loopLength
func New(clock Clock, loopLength time.Duration) *Transport {
	if clock == nil {
		clock = SystemClock()
	}
	if loopLength <= 0 {
		loopLength = time.Second
	}
	return &Transport{
		clock:  clock,
		loop:   loopLength,
		events: make(map[EventID]*event),
	}
}

// LoopLength returns the loop period
func (t *Transport) LoopLength() time.Duration {
	return t.loop
}

// Start begins the timeline at zero. Starting a running transport is a no-op.
func (t *Transport) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.t0 = t.clock.Now()
	t.dispatched = -1
	debug.Log("transport", "start loop=%v events=%d", t.loop, len(t.events))
}

// Stop halts dispatching. Elapsed reads 0 until the next Start, which
// restarts the timeline at zero. Scheduled events are kept.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}

// Running reports whether the timeline is advancing
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Elapsed is the time since Start (0 when stopped)
func (t *Transport) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return t.clock.Now().Sub(t.t0)
}

// Schedule registers fn to run at offset within every loop
func (t *Transport) Schedule(fn Callback, offset time.Duration) EventID {
	t.mu.Lock()
	defer t.mu.Unlock()

	offset %= t.loop
	if offset < 0 {
		offset += t.loop
	}

	t.nextID++
	id := t.nextID
	t.events[id] = &event{offset: offset, fn: fn}
	return id
}

// Clear removes one event. Unknown ids are ignored.
func (t *Transport) Clear(id EventID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.events, id)
}

// Cancel removes every event
func (t *Transport) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = make(map[EventID]*event)
}

// Scheduled reports whether id is still registered
func (t *Transport) Scheduled(id EventID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.events[id]
	return ok
}

// Len returns the number of registered events
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

type due struct {
	id EventID
	at time.Duration
	fn Callback
}

// Advance fires every occurrence that came due since the previous call, in
// time order. Callbacks run without the transport lock held. If more than
// one loop passed (a stalled process) only the last loop is played: missed
// notes stay missed.
func (t *Transport) Advance(now time.Time) int {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return 0
	}

	to := now.Sub(t.t0)
	from := t.dispatched
	if to <= from {
		t.mu.Unlock()
		return 0
	}
	if to-from > t.loop {
		debug.Log("transport", "skipped %v of timeline", to-from-t.loop)
		from = to - t.loop
	}

	var fire []due
	for id, ev := range t.events {
		// first loop index k with k*loop+offset > from
		k := floorDiv(from-ev.offset, t.loop) + 1
		for at := time.Duration(k)*t.loop + ev.offset; at <= to; at += t.loop {
			fire = append(fire, due{id: id, at: at, fn: ev.fn})
		}
	}
	t.dispatched = to
	t.mu.Unlock()

	sort.Slice(fire, func(i, j int) bool {
		if fire[i].at != fire[j].at {
			return fire[i].at < fire[j].at
		}
		return fire[i].id < fire[j].id
	})
	for _, f := range fire {
		f.fn(f.id, f.at)
	}
	return len(fire)
}

// Run polls the clock every resolution and dispatches due events until ctx
// is done.
func (t *Transport) Run(ctx context.Context, resolution time.Duration) {
	if resolution <= 0 {
		resolution = time.Millisecond
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Advance(t.clock.Now()); n > 0 {
				debug.LogEvery(200, "transport", "dispatched %d", n)
			}
		}
	}
}

func floorDiv(a, b time.Duration) time.Duration {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
