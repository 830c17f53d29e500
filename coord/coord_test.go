package coord

import "testing"

func TestIndexRoundTrip(t *testing.T) {
	sizes := []struct{ w, h int }{{16, 16}, {8, 5}, {3, 12}, {1, 1}}

	for _, s := range sizes {
		seen := make(map[int]bool)
		for x := 0; x < s.w; x++ {
			for y := 0; y < s.h; y++ {
				i := ToIndex(x, y, s.h)
				if i < 0 || i >= s.w*s.h {
					t.Fatalf("%dx%d: index %d for (%d,%d) out of range", s.w, s.h, i, x, y)
				}
				if seen[i] {
					t.Fatalf("%dx%d: index %d assigned twice", s.w, s.h, i)
				}
				seen[i] = true

				gx, gy := FromIndex(i, s.h)
				if gx != x || gy != y {
					t.Errorf("%dx%d: FromIndex(%d) = (%d,%d), want (%d,%d)", s.w, s.h, i, gx, gy, x, y)
				}
			}
		}
	}
}

func TestIndexIsColumnMajor(t *testing.T) {
	if got := ToIndex(0, 15, 16); got != 15 {
		t.Errorf("ToIndex(0,15) = %d, want 15", got)
	}
	if got := ToIndex(1, 0, 16); got != 16 {
		t.Errorf("ToIndex(1,0) = %d, want 16", got)
	}
}

func TestPixelToTile(t *testing.T) {
	tests := []struct {
		name   string
		x, y   float64
		wantX  int
		wantY  int
		wantOK bool
	}{
		{"origin", 0, 0, 0, 0, true},
		{"inside first tile", 3.9, 1.9, 0, 0, true},
		{"second column", 4, 0, 1, 0, true},
		{"last tile", 63.5, 31.5, 15, 15, true},
		{"right edge", 64, 0, 0, 0, false},
		{"bottom edge", 0, 32, 0, 0, false},
		{"negative", -0.1, 5, 0, 0, false},
		{"pointer absent", -1, -1, 0, 0, false},
	}

	// 16x16 grid drawn on a 64x32 canvas: tiles are 4x2 pixels
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, ok := PixelToTile(tt.x, tt.y, 16, 16, 64, 32)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (x != tt.wantX || y != tt.wantY) {
				t.Errorf("got (%d,%d), want (%d,%d)", x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestPixelToTileNonSquare(t *testing.T) {
	// 8 wide, 4 tall: y beyond the height must be rejected even if below the width
	if _, _, ok := PixelToTile(0, 5, 8, 4, 8, 4); ok {
		t.Error("row 5 of a 4-row grid should be out of bounds")
	}
	x, y, ok := PixelToTile(7.5, 3.5, 8, 4, 8, 4)
	if !ok || x != 7 || y != 3 {
		t.Errorf("got (%d,%d,%v), want (7,3,true)", x, y, ok)
	}
}

func TestTileCenter(t *testing.T) {
	x, y := TileCenter(2, 3, 16, 16, 64, 32)
	if x != 10 || y != 7 {
		t.Errorf("TileCenter(2,3) = (%v,%v), want (10,7)", x, y)
	}
}
