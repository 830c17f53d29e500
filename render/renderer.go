package render

import (
	"math"
	"time"

	"tonegrid/coord"
	"tonegrid/debug"
	"tonegrid/particle"
	"tonegrid/sequencer"
	"tonegrid/theme"
)

const (
	DefaultArmedAlpha = 0.85
	DefaultHoverAlpha = 0.3

	// idle cells never drop below idleFloor; heat adds up to idleRange more
	idleFloor = 51.0 / 255
	idleRange = 204.0 / 255
	heatScale = 0.05
)

type Options struct {
	BurstSpeed float64 // surface pixels per 60fps frame
	BurstCount int
	ArmedAlpha float64
	HoverAlpha float64
}

func DefaultOptions() Options {
	return Options{
		BurstSpeed: 0.5,
		BurstCount: 20,
		ArmedAlpha: DefaultArmedAlpha,
		HoverAlpha: DefaultHoverAlpha,
	}
}

// Stats counts what the renderer has done since it was created
type Stats struct {
	Frames     int
	Bursts     int
	DrawErrors int
}

// Renderer implements sequencer.FrameRenderer. It owns the particle pool:
// nothing else ticks or spawns into it.
type Renderer struct {
	surface Surface
	pool    *particle.Pool
	opts    Options

	snap         sequencer.Snapshot
	lastPlayhead int
	stats        Stats

	now func() time.Time
}

func New(surface Surface, pool *particle.Pool, opts Options) *Renderer {
	if pool == nil {
		w, h := surface.Size()
		pool = particle.New(particle.DefaultCapacity, w, h, 0)
	}
	return &Renderer{
		surface:      surface,
		pool:         pool,
		opts:         opts,
		lastPlayhead: -1,
		now:          time.Now,
	}
}

func (r *Renderer) Pool() *particle.Pool { return r.pool }
func (r *Renderer) Stats() Stats         { return r.stats }

// Update draws one frame
func (r *Renderer) Update(g *sequencer.Grid, pointerX, pointerY float64) {
	w, h := r.surface.Size()
	if w <= 0 || h <= 0 {
		return
	}
	r.pool.Resize(w, h)
	r.pool.Tick(r.now())

	g.Snapshot(&r.snap)
	gw, gh := r.snap.Width, r.snap.Height

	playhead := g.PlayheadColumn()
	entered := playhead != r.lastPlayhead
	r.lastPlayhead = playhead

	heat := r.pool.Heatmap(gw, gh, func(x, y float64) (int, bool) {
		tx, ty, ok := coord.PixelToTile(x, y, gw, gh, w, h)
		if !ok {
			return 0, false
		}
		return coord.ToIndex(tx, ty, gh), true
	})
	hx, hy, hover := coord.PixelToTile(pointerX, pointerY, gw, gh, w, h)

	r.surface.FillRect(0, 0, w, h, theme.Background)

	dx, dy := coord.TileSize(gw, gh, w, h)
	for x := 0; x < gw; x++ {
		for y := 0; y < gh; y++ {
			id := SpriteIdle
			opts := SpriteOptions{Tint: r.snap.HasNote(x, y, 1)}

			switch {
			case r.snap.Occupied(x, y) && x == playhead:
				id = SpriteActive
				opts.Alpha = 1
				if entered {
					cx, cy := coord.TileCenter(x, y, gw, gh, w, h)
					r.pool.SpawnBurst(cx, cy, r.opts.BurstSpeed, r.opts.BurstCount)
					r.stats.Bursts++
				}
			case r.snap.Occupied(x, y):
				id = SpriteArmed
				opts.Alpha = r.opts.ArmedAlpha
			case hover && x == hx && y == hy:
				opts.Alpha = r.opts.HoverAlpha
			default:
				opts.Alpha = r.idleAlpha(heat[coord.ToIndex(x, y, gh)])
			}

			if err := r.surface.DrawSprite(id, float64(x)*dx, float64(y)*dy, dx, dy, opts); err != nil {
				r.stats.DrawErrors++
				debug.LogEvery(60, "render", "draw %s at %d,%d: %v", id, x, y, err)
			}
		}
	}
	r.stats.Frames++
}

func (r *Renderer) idleAlpha(heat float64) float64 {
	life := r.pool.Lifetime
	if life <= 0 {
		life = particle.DefaultLifetime
	}
	return math.Min(1, heat*heatScale*idleRange/life+idleFloor)
}
