// Package particle is the fixed-capacity particle pool behind the playhead
// bursts and the idle-cell afterglow.
package particle

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultCapacity = 2000
	DefaultLifetime = 40.0 // frames at 60fps

	// FrameInterval is the reference frame: motion is normalised so that
	// dt == 1 for one 60fps frame.
	FrameInterval = time.Second / 60
)

// Particle is a point with velocity and remaining lifetime (in frames).
// A particle with Life <= 0 is dead; its slot is reused in place.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Life   float64
}

// Alive reports whether the particle still moves and contributes heat
func (p *Particle) Alive() bool {
	return p.Life > 0
}

// Pool is a lossy ring buffer: once every slot has been written, each new
// particle overwrites the slot at the cursor, live or not.
type Pool struct {
	Lifetime float64

	particles     []Particle
	cursor        int
	width, height float64

	last    time.Time
	started bool

	rng *rand.Rand
}

// New creates a pool of capacity slots moving inside a width x height area
func New(capacity int, width, height float64, seed int64) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pool{
		Lifetime:  DefaultLifetime,
		particles: make([]Particle, capacity),
		width:     width,
		height:    height,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Cap returns the number of slots
func (p *Pool) Cap() int {
	return len(p.particles)
}

// Bounds returns the area particles bounce inside
func (p *Pool) Bounds() (width, height float64) {
	return p.width, p.height
}

// Resize changes the bounce area. Particles keep their positions.
func (p *Pool) Resize(width, height float64) {
	p.width, p.height = width, height
}

// At returns a copy of slot i
func (p *Pool) At(i int) Particle {
	return p.particles[i]
}

// Live counts particles with remaining lifetime
func (p *Pool) Live() int {
	n := 0
	for i := range p.particles {
		if p.particles[i].Alive() {
			n++
		}
	}
	return n
}

// Tick advances every live particle. The first call only records the
// baseline time.
func (p *Pool) Tick(now time.Time) {
	if !p.started {
		p.started = true
		p.last = now
		return
	}

	dt := float64(now.Sub(p.last)) / float64(FrameInterval)
	p.last = now
	if dt <= 0 {
		return
	}

	for i := range p.particles {
		pt := &p.particles[i]
		if !pt.Alive() {
			continue
		}

		pt.X += pt.VX * dt
		if pt.X > p.width || pt.X < 0 {
			// bounce: reflect and step back inside
			pt.VX = -pt.VX
			pt.X += pt.VX * dt
		}

		pt.Y += pt.VY * dt
		if pt.Y > p.height || pt.Y < 0 {
			pt.VY = -pt.VY
			pt.Y += pt.VY * dt
		}

		pt.Life -= dt
	}
}

// Spawn writes one particle at the cursor and advances it
func (p *Pool) Spawn(x, y, vx, vy float64) {
	p.particles[p.cursor] = Particle{X: x, Y: y, VX: vx, VY: vy, Life: p.Lifetime}
	p.cursor++
	if p.cursor >= len(p.particles) {
		p.cursor = 0
	}
}

// SpawnBurst emits count particles from (x, y) with velocities of the given
// magnitude, evenly spaced around the circle. Each burst gets its own random
// rotation so repeated bursts at one spot don't overlap.
func (p *Pool) SpawnBurst(x, y, speed float64, count int) {
	if count <= 0 {
		return
	}
	offset := p.rng.Float64() * 2 * math.Pi
	step := 2 * math.Pi / float64(count)
	for i := 0; i < count; i++ {
		angle := offset + float64(i)*step
		p.Spawn(x, y, math.Cos(angle)*speed, math.Sin(angle)*speed)
	}
}

// Heatmap sums the remaining life of live particles per grid cell.
// toCell maps a pixel position to a cell index; ok=false drops the particle.
func (p *Pool) Heatmap(gridWidth, gridHeight int, toCell func(x, y float64) (index int, ok bool)) []float64 {
	heat := make([]float64, gridWidth*gridHeight)
	for i := range p.particles {
		pt := &p.particles[i]
		if !pt.Alive() {
			continue
		}
		idx, ok := toCell(pt.X, pt.Y)
		if !ok || idx < 0 || idx >= len(heat) {
			continue
		}
		heat[idx] += pt.Life
	}
	return heat
}

// Clear kills every particle and resets the cursor
func (p *Pool) Clear() {
	for i := range p.particles {
		p.particles[i] = Particle{}
	}
	p.cursor = 0
}
