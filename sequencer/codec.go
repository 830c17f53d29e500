package sequencer

import (
	"encoding/base64"
	"fmt"
	"strings"

	"tonegrid/debug"
)

// Share strings pack occupancy one bit per cell, MSB first, in column-major
// order: bit n is the cell at coord.ToIndex(x, y, height) == n. The last
// byte is zero padded. The bytes are standard base64.

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for n, set := range bits {
		if set {
			out[n/8] |= 0x80 >> (n % 8)
		}
	}
	return out
}

// unpackBits reads n bits; missing trailing bits are false
func unpackBits(data []byte, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		if i/8 >= len(data) {
			break
		}
		bits[i] = data[i/8]&(0x80>>(i%8)) != 0
	}
	return bits
}

// Serialize encodes which cells hold a note under any instrument. An empty
// grid encodes to "".
func (g *Grid) Serialize() string {
	g.mu.RLock()
	bits := make([]bool, len(g.tiles))
	occupied := false
	for i := range g.tiles {
		bits[i] = !g.tiles[i].IsEmpty()
		occupied = occupied || bits[i]
	}
	g.mu.RUnlock()

	if !occupied {
		return ""
	}
	return base64.StdEncoding.EncodeToString(packBits(bits))
}

// Deserialize arms exactly the encoded cells under the current instrument
// and disarms the rest. Corrupt input still applies the bytes decoded
// before the fault and returns ErrMalformedState.
func (g *Grid) Deserialize(state string) error {
	data, decodeErr := decodeState(state)

	g.mu.Lock()
	bits := unpackBits(data, len(g.tiles))
	for n, set := range bits {
		x, y := n/g.height, n%g.height
		g.setArmedLocked(x, y, set)
	}
	g.mu.Unlock()

	debug.Log("grid", "loaded %d bytes from share string", len(data))
	g.notify()
	return decodeErr
}

// decodeState accepts padded or unpadded input, and the URL alphabet
func decodeState(state string) ([]byte, error) {
	s := strings.TrimSpace(state)
	if s == "" {
		return nil, nil
	}
	// query strings turn '+' into ' '
	s = strings.NewReplacer(" ", "+", "-", "+", "_", "/").Replace(s)

	enc := base64.StdEncoding
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	buf := make([]byte, enc.DecodedLen(len(s)))
	n, err := enc.Decode(buf, []byte(s))
	if err != nil {
		return buf[:n], fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return buf[:n], nil
}
