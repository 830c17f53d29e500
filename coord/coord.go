// Package coord maps between pixel space, tile coordinates and the linear
// cell index used by the grid. Cells are stored column-major: all rows of
// column 0 first, then column 1, and so on.
package coord

import "math"

// TileSize returns the size of one tile in pixels
func TileSize(gridWidth, gridHeight int, canvasWidth, canvasHeight float64) (dx, dy float64) {
	return canvasWidth / float64(gridWidth), canvasHeight / float64(gridHeight)
}

// PixelToTile converts a pixel position to tile coordinates.
// ok is false when the position falls outside the grid.
func PixelToTile(x, y float64, gridWidth, gridHeight int, canvasWidth, canvasHeight float64) (tx, ty int, ok bool) {
	if gridWidth <= 0 || gridHeight <= 0 || canvasWidth <= 0 || canvasHeight <= 0 {
		return 0, 0, false
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}

	dx, dy := TileSize(gridWidth, gridHeight, canvasWidth, canvasHeight)
	fx := math.Floor(x / dx)
	fy := math.Floor(y / dy)

	if fx < 0 || fy < 0 || fx >= float64(gridWidth) || fy >= float64(gridHeight) {
		return 0, 0, false
	}
	return int(fx), int(fy), true
}

// TileCenter returns the pixel centre of a tile
func TileCenter(tx, ty, gridWidth, gridHeight int, canvasWidth, canvasHeight float64) (x, y float64) {
	dx, dy := TileSize(gridWidth, gridHeight, canvasWidth, canvasHeight)
	return dx * (float64(tx) + 0.5), dy * (float64(ty) + 0.5)
}

// ToIndex returns the linear cell index of (x, y)
func ToIndex(x, y, gridHeight int) int {
	return x*gridHeight + y
}

// FromIndex is the inverse of ToIndex
func FromIndex(index, gridHeight int) (x, y int) {
	return index / gridHeight, index % gridHeight
}
