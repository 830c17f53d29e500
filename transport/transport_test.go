package transport

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newFake(loop time.Duration) (*Transport, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	return New(clk, loop), clk
}

func TestAdvanceFiresAtOffset(t *testing.T) {
	tr, clk := newFake(time.Second)
	var fired []time.Duration
	tr.Schedule(func(_ EventID, at time.Duration) { fired = append(fired, at) }, 250*time.Millisecond)
	tr.Start()

	if n := tr.Advance(clk.advance(200 * time.Millisecond)); n != 0 {
		t.Fatalf("fired %d events before offset", n)
	}
	if n := tr.Advance(clk.advance(100 * time.Millisecond)); n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}
	if len(fired) != 1 || fired[0] != 250*time.Millisecond {
		t.Errorf("fired = %v, want [250ms]", fired)
	}
}

func TestZeroOffsetFiresAtStart(t *testing.T) {
	tr, clk := newFake(time.Second)
	count := 0
	tr.Schedule(func(EventID, time.Duration) { count++ }, 0)
	tr.Start()
	tr.Advance(clk.now)
	if count != 1 {
		t.Errorf("offset 0 fired %d times at start, want 1", count)
	}
}

func TestEventRepeatsEveryLoop(t *testing.T) {
	tr, clk := newFake(time.Second)
	var fired []time.Duration
	tr.Schedule(func(_ EventID, at time.Duration) { fired = append(fired, at) }, 500*time.Millisecond)
	tr.Start()

	for i := 0; i < 30; i++ {
		tr.Advance(clk.advance(100 * time.Millisecond))
	}

	want := []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 2500 * time.Millisecond}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %v, want %v", i, fired[i], want[i])
		}
	}
}

func TestAdvanceAcrossWrapFiresInOrder(t *testing.T) {
	tr, clk := newFake(time.Second)
	var order []string
	tr.Schedule(func(EventID, time.Duration) { order = append(order, "late") }, 900*time.Millisecond)
	tr.Schedule(func(EventID, time.Duration) { order = append(order, "early") }, 100*time.Millisecond)
	tr.Start()

	tr.Advance(clk.advance(800 * time.Millisecond)) // early
	tr.Advance(clk.advance(400 * time.Millisecond)) // late, then early again

	want := []string{"early", "late", "early"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestStallPlaysOnlyLastLoop(t *testing.T) {
	tr, clk := newFake(time.Second)
	count := 0
	tr.Schedule(func(EventID, time.Duration) { count++ }, 500*time.Millisecond)
	tr.Start()
	tr.Advance(clk.now)

	tr.Advance(clk.advance(10 * time.Second))
	if count != 1 {
		t.Errorf("stalled advance fired %d times, want 1", count)
	}
}

func TestClear(t *testing.T) {
	tr, clk := newFake(time.Second)
	count := 0
	id := tr.Schedule(func(EventID, time.Duration) { count++ }, 100*time.Millisecond)
	tr.Start()

	tr.Clear(id)
	tr.Clear(id) // unknown id is a no-op
	tr.Clear(EventID(12345))

	tr.Advance(clk.advance(2 * time.Second))
	if count != 0 {
		t.Errorf("cleared event fired %d times", count)
	}
	if tr.Scheduled(id) {
		t.Error("cleared event still scheduled")
	}
}

func TestCancel(t *testing.T) {
	tr, _ := newFake(time.Second)
	for i := 0; i < 5; i++ {
		tr.Schedule(func(EventID, time.Duration) {}, time.Duration(i)*100*time.Millisecond)
	}
	tr.Cancel()
	if tr.Len() != 0 {
		t.Errorf("Len after Cancel = %d", tr.Len())
	}
}

func TestEventIDsAreMonotonic(t *testing.T) {
	tr, _ := newFake(time.Second)
	a := tr.Schedule(func(EventID, time.Duration) {}, 0)
	tr.Clear(a)
	b := tr.Schedule(func(EventID, time.Duration) {}, 0)
	if b <= a {
		t.Errorf("id %d not greater than cleared id %d", b, a)
	}
}

func TestElapsed(t *testing.T) {
	tr, clk := newFake(time.Second)
	if tr.Elapsed() != 0 {
		t.Error("stopped transport reports elapsed time")
	}
	tr.Start()
	clk.advance(1700 * time.Millisecond)
	if got := tr.Elapsed(); got != 1700*time.Millisecond {
		t.Errorf("Elapsed = %v", got)
	}
	tr.Stop()
	if tr.Elapsed() != 0 {
		t.Error("Elapsed after Stop should be 0")
	}
	clk.advance(time.Second)
	tr.Start()
	clk.advance(200 * time.Millisecond)
	if got := tr.Elapsed(); got != 200*time.Millisecond {
		t.Errorf("Elapsed after restart = %v, want 200ms", got)
	}
}

func TestCallbackMayReschedule(t *testing.T) {
	tr, clk := newFake(time.Second)
	id := tr.Schedule(func(self EventID, _ time.Duration) {
		tr.Clear(self)
		tr.Schedule(func(EventID, time.Duration) {}, 0)
	}, 100*time.Millisecond)
	tr.Start()
	tr.Advance(clk.advance(200 * time.Millisecond))
	if tr.Scheduled(id) || tr.Len() != 1 {
		t.Errorf("reschedule from callback: scheduled=%v len=%d", tr.Scheduled(id), tr.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := New(SystemClock(), 50*time.Millisecond)
	fired := make(chan struct{}, 16)
	tr.Schedule(func(EventID, time.Duration) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, 0)
	tr.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never dispatched")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCallbackReceivesItsID(t *testing.T) {
	tr, clk := newFake(time.Second)
	var got []EventID
	a := tr.Schedule(func(id EventID, _ time.Duration) { got = append(got, id) }, 100*time.Millisecond)
	b := tr.Schedule(func(id EventID, _ time.Duration) { got = append(got, id) }, 200*time.Millisecond)
	tr.Start()
	tr.Advance(clk.advance(300 * time.Millisecond))
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("callbacks got ids %v, want [%d %d]", got, a, b)
	}
}
