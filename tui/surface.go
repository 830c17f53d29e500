package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"tonegrid/render"
	"tonegrid/theme"
)

// Surface is a render.Surface on terminal cells: one pixel per character.
// Each tile keeps its last column blank as a gap.
type Surface struct {
	cols, rows int
	cells      []colorful.Color
	sheet      render.SpriteSheet
	glyph      string
}

func NewSurface(gridW, gridH, tileCols, tileRows int, sheet render.SpriteSheet, sym theme.Symbols) *Surface {
	cols, rows := gridW*tileCols, gridH*tileRows
	return &Surface{
		cols:  cols,
		rows:  rows,
		cells: make([]colorful.Color, cols*rows),
		sheet: sheet,
		glyph: string(sym.Tile),
	}
}

func (s *Surface) Size() (float64, float64) {
	return float64(s.cols), float64(s.rows)
}

func (s *Surface) FillRect(x, y, w, h float64, c colorful.Color) {
	x0, y0, x1, y1 := s.clip(x, y, w, h)
	s.fill(x0, y0, x1, y1, c)
}

func (s *Surface) DrawSprite(id render.SpriteID, x, y, w, h float64, opts render.SpriteOptions) error {
	if id < render.SpriteIdle || id > render.SpriteActive {
		return fmt.Errorf("unknown sprite %d", id)
	}
	x0, y0, x1, y1 := s.clip(x, y, w, h)
	if x1-x0 > 1 {
		x1--
	}
	s.fill(x0, y0, x1, y1, s.sheet.Shade(id, opts))
	return nil
}

// At returns the colour of one cell
func (s *Surface) At(x, y int) colorful.Color {
	return s.cells[y*s.cols+x]
}

func (s *Surface) fill(x0, y0, x1, y1 int, c colorful.Color) {
	for y := y0; y < y1; y++ {
		row := s.cells[y*s.cols : (y+1)*s.cols]
		for x := x0; x < x1; x++ {
			row[x] = c
		}
	}
}

func (s *Surface) clip(x, y, w, h float64) (x0, y0, x1, y1 int) {
	x0 = clampInt(int(math.Round(x)), 0, s.cols)
	y0 = clampInt(int(math.Round(y)), 0, s.rows)
	x1 = clampInt(int(math.Round(x+w)), x0, s.cols)
	y1 = clampInt(int(math.Round(y+h)), y0, s.rows)
	return
}

// View renders the cells, one styled run per colour change
func (s *Surface) View() string {
	lines := make([]string, s.rows)
	for y := 0; y < s.rows; y++ {
		var line strings.Builder
		row := s.cells[y*s.cols : (y+1)*s.cols]
		for x := 0; x < len(row); {
			end := x + 1
			for end < len(row) && row[end] == row[x] {
				end++
			}
			style := lipgloss.NewStyle().Foreground(theme.Hex(row[x]))
			line.WriteString(style.Render(strings.Repeat(s.glyph, end-x)))
			x = end
		}
		lines[y] = line.String()
	}
	return strings.Join(lines, "\n")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
