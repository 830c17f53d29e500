package particle

import (
	"math"
	"testing"
	"time"
)

const eps = 1e-9

func TestFirstTickOnlyRecordsBaseline(t *testing.T) {
	p := New(8, 100, 100, 1)
	p.Spawn(10, 10, 1, 1)

	now := time.Unix(100, 0)
	p.Tick(now)

	got := p.At(0)
	if got.X != 10 || got.Y != 10 || got.Life != DefaultLifetime {
		t.Errorf("first tick moved particle: %+v", got)
	}
}

func TestTickIntegratesOneFrame(t *testing.T) {
	p := New(8, 100, 100, 1)
	p.Spawn(10, 20, 2, -3)

	now := time.Unix(100, 0)
	p.Tick(now)
	p.Tick(now.Add(FrameInterval))

	got := p.At(0)
	if math.Abs(got.X-12) > eps || math.Abs(got.Y-17) > eps {
		t.Errorf("position = (%v,%v), want (12,17)", got.X, got.Y)
	}
	if math.Abs(got.Life-(DefaultLifetime-1)) > eps {
		t.Errorf("life = %v, want %v", got.Life, DefaultLifetime-1)
	}
}

func TestTickReflectsAtBounds(t *testing.T) {
	p := New(4, 10, 10, 1)
	p.Spawn(9.5, 0.5, 1, -1)

	now := time.Unix(0, 0)
	p.Tick(now)
	p.Tick(now.Add(FrameInterval))

	got := p.At(0)
	if got.VX != -1 || got.VY != 1 {
		t.Errorf("velocity = (%v,%v), want reflected (-1,1)", got.VX, got.VY)
	}
	if got.X < 0 || got.X > 10 || got.Y < 0 || got.Y > 10 {
		t.Errorf("particle left the area: (%v,%v)", got.X, got.Y)
	}
}

func TestDeadParticlesStayInert(t *testing.T) {
	p := New(4, 100, 100, 1)
	p.Lifetime = 1
	p.Spawn(50, 50, 1, 0)

	now := time.Unix(0, 0)
	p.Tick(now)
	p.Tick(now.Add(2 * FrameInterval))
	dead := p.At(0)
	if dead.Alive() {
		t.Fatalf("particle should be dead, life=%v", dead.Life)
	}

	p.Tick(now.Add(10 * FrameInterval))
	if got := p.At(0); got.X != dead.X || got.Life != dead.Life {
		t.Errorf("dead particle changed: %+v -> %+v", dead, got)
	}
	if p.Live() != 0 {
		t.Errorf("Live() = %d, want 0", p.Live())
	}
}

func TestRingBufferNeverExceedsCapacity(t *testing.T) {
	p := New(50, 100, 100, 1)
	for i := 0; i < 175; i++ {
		p.Spawn(float64(i%100), 0, 0, 0)
		if live := p.Live(); live > p.Cap() {
			t.Fatalf("after %d spawns live=%d exceeds capacity %d", i+1, live, p.Cap())
		}
	}
	if p.Live() != 50 {
		t.Errorf("Live() = %d, want 50", p.Live())
	}
	// 175 spawns: slot 0 was last written by spawn #150 (x = 150 % 100)
	if got := p.At(0).X; got != 50 {
		t.Errorf("slot 0 X = %v, want 50 (oldest evicted)", got)
	}
}

func TestSpawnBurstShape(t *testing.T) {
	for _, n := range []int{1, 3, 20, 64} {
		p := New(100, 100, 100, 42)
		p.SpawnBurst(50, 50, 8, n)

		if p.Live() != n {
			t.Fatalf("n=%d: live = %d", n, p.Live())
		}

		base := math.Atan2(p.At(0).VY, p.At(0).VX)
		step := 2 * math.Pi / float64(n)
		for i := 0; i < n; i++ {
			pt := p.At(i)
			if pt.X != 50 || pt.Y != 50 {
				t.Errorf("n=%d particle %d not at origin: (%v,%v)", n, i, pt.X, pt.Y)
			}
			if mag := math.Hypot(pt.VX, pt.VY); math.Abs(mag-8) > 1e-9 {
				t.Errorf("n=%d particle %d speed = %v, want 8", n, i, mag)
			}
			angle := math.Atan2(pt.VY, pt.VX) - base
			want := float64(i) * step
			diff := math.Mod(angle-want+4*math.Pi, 2*math.Pi)
			if diff > 1e-9 && 2*math.Pi-diff > 1e-9 {
				t.Errorf("n=%d particle %d angle offset %v, want %v", n, i, angle, want)
			}
		}
	}
}

func TestBurstRotationVaries(t *testing.T) {
	p := New(10, 100, 100, 7)
	p.SpawnBurst(0, 0, 1, 1)
	p.SpawnBurst(0, 0, 1, 1)
	a, b := p.At(0), p.At(1)
	if a.VX == b.VX && a.VY == b.VY {
		t.Error("two bursts produced identical rotation")
	}
}

func TestHeatmap(t *testing.T) {
	p := New(10, 40, 40, 1)

	heat := p.Heatmap(4, 4, cellOf)
	for i, h := range heat {
		if h != 0 {
			t.Fatalf("empty pool heat[%d] = %v", i, h)
		}
	}

	p.Spawn(5, 5, 0, 0)   // cell (0,0)
	p.Spawn(6, 6, 0, 0)   // cell (0,0)
	p.Spawn(35, 15, 0, 0) // cell (3,1)
	p.Spawn(-5, 0, 0, 0)  // off grid

	heat = p.Heatmap(4, 4, cellOf)
	if heat[0] != 2*DefaultLifetime {
		t.Errorf("heat[0] = %v, want %v", heat[0], 2*DefaultLifetime)
	}
	if heat[3*4+1] != DefaultLifetime {
		t.Errorf("heat[13] = %v, want %v", heat[13], DefaultLifetime)
	}

	var total float64
	for _, h := range heat {
		total += h
	}
	if total != 3*DefaultLifetime {
		t.Errorf("total heat = %v, want %v", total, 3*DefaultLifetime)
	}
}

// cellOf maps 10px tiles on a 4x4 grid, column-major
func cellOf(x, y float64) (int, bool) {
	if x < 0 || y < 0 || x >= 40 || y >= 40 {
		return 0, false
	}
	return int(x/10)*4 + int(y/10), true
}
