package render

import (
	"github.com/lucasb-eyer/go-colorful"

	"tonegrid/theme"
)

// SpriteSheet holds the base colour of each sprite
type SpriteSheet struct {
	Idle, Armed, Active colorful.Color
	Background          colorful.Color
	Theme               *theme.Theme
}

func DefaultSprites(th *theme.Theme) SpriteSheet {
	if th == nil {
		th = theme.New(nil)
	}
	return SpriteSheet{
		Idle:       theme.SpriteIdle,
		Armed:      theme.SpriteArmed,
		Active:     theme.SpriteActive,
		Background: theme.Background,
		Theme:      th,
	}
}

// Base returns the untinted, opaque colour of a sprite
func (s SpriteSheet) Base(id SpriteID) colorful.Color {
	switch id {
	case SpriteArmed:
		return s.Armed
	case SpriteActive:
		return s.Active
	}
	return s.Idle
}

// Shade resolves a sprite draw to the colour it leaves over the background
func (s SpriteSheet) Shade(id SpriteID, opts SpriteOptions) colorful.Color {
	c := s.Base(id)
	if opts.Tint {
		c = s.Theme.Tint(c)
	}
	return theme.Blend(c, s.Background, opts.Alpha)
}
