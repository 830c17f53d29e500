// Package render draws the grid: tile sprites, the playhead column and the
// particle afterglow that lights up idle cells.
package render

import "github.com/lucasb-eyer/go-colorful"

type SpriteID int

const (
	SpriteIdle SpriteID = iota
	SpriteArmed
	SpriteActive
)

func (s SpriteID) String() string {
	switch s {
	case SpriteIdle:
		return "idle"
	case SpriteArmed:
		return "armed"
	case SpriteActive:
		return "active"
	}
	return "unknown"
}

// SpriteOptions modify one sprite draw
type SpriteOptions struct {
	Alpha float64 // 0-1
	Tint  bool    // second instrument colouring
}

// Surface is what the renderer draws on. Coordinates are in the surface's
// own pixels; for the terminal one pixel is one character cell.
type Surface interface {
	Size() (width, height float64)
	FillRect(x, y, w, h float64, c colorful.Color)
	DrawSprite(id SpriteID, x, y, w, h float64, opts SpriteOptions) error
}
