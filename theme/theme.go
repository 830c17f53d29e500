package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols

	// TintHue is the hue (degrees) cells of the second instrument take on
	TintHue float64
}

type Symbols struct {
	Tile     rune // █ one terminal cell of a tile
	Playhead rune // ▼ column marker
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Tile:     '█',
			Playhead: '▼',
		},
		TintHue: 40,
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleSurface = 0.1 // dark purple
	RoleMuted   = 0.3 // purple-magenta
	RoleFG      = 0.5 // rose
	RoleAccent  = 0.4 // pink-purple
	RoleActive  = 0.6 // soft red
	RoleWarning = 0.8 // orange
	RoleSuccess = 1.0 // bright yellow
)

// Sprite colours before opacity
var (
	SpriteIdle   = colorful.Color{R: 0.8, G: 0.8, B: 0.85}
	SpriteArmed  = colorful.Color{R: 0.95, G: 0.95, B: 1}
	SpriteActive = colorful.Color{R: 1, G: 1, B: 1}
	Background   = colorful.Color{}
)

// Style helpers

func (t *Theme) BG() lipgloss.Color      { return t.Color(RoleBG) }
func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return Hex(t.Palette.Lookup(norm).Colorful())
}

// RGB returns raw RGB for any normalized value (for Launchpad)
func (t *Theme) RGB(norm float64) RGB {
	return t.Palette.Lookup(norm)
}

// Tint recolours c toward the theme's tint hue, keeping its lightness
func (t *Theme) Tint(c colorful.Color) colorful.Color {
	return Tint(c, t.TintHue)
}

// Blend composites fg over bg at alpha (0-1)
func Blend(fg, bg colorful.Color, alpha float64) colorful.Color {
	if alpha <= 0 {
		return bg
	}
	if alpha >= 1 {
		return fg
	}
	return bg.BlendRgb(fg, alpha).Clamped()
}

// Tint gives c the hue in degrees with fixed chroma, keeping lightness
func Tint(c colorful.Color, hue float64) colorful.Color {
	_, _, l := c.Hcl()
	return colorful.Hcl(hue, 0.35, l).Clamped()
}

// Hex formats a colour for lipgloss
func Hex(c colorful.Color) lipgloss.Color {
	return lipgloss.Color(c.Clamped().Hex())
}
