// Package audio renders instrument scales into sample buffers and plays
// slices of them back through a shared output mix.
package audio

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrUnknownNote = errors.New("unknown note")
	ErrInvalidWave = errors.New("invalid wave")
)

// pentatonic is the five-note template every scale is built from. B# is
// enharmonic C of the next octave.
var pentatonic = [5]string{"B#", "D", "F", "G", "A"}

// Note is a pitch name plus octave, e.g. {"D", 4}
type Note struct {
	Name   string
	Octave int
}

func (n Note) String() string {
	return n.Name + strconv.Itoa(n.Octave)
}

// MIDI returns the MIDI note number (A4 = 69)
func (n Note) MIDI() (int, error) {
	return NoteToMIDI(n.Name, n.Octave)
}

// Frequency returns the equal-tempered frequency in Hz
func (n Note) Frequency() (float64, error) {
	return NoteFrequency(n.Name, n.Octave)
}

// NoteFrequency is the frequency of a named note, A4 = 440 Hz
func NoteFrequency(name string, octave int) (float64, error) {
	m, err := NoteToMIDI(name, octave)
	if err != nil {
		return 0, err
	}
	return MIDIFrequency(m), nil
}

// Pentatonic builds a scale of height notes, row 0 highest.
func Pentatonic(height, baseOctave int) []Note {
	scale := make([]Note, height)
	for i := 0; i < height; i++ {
		scale[height-1-i] = Note{
			Name:   pentatonic[i%len(pentatonic)],
			Octave: baseOctave + (i+4)/len(pentatonic),
		}
	}
	return scale
}

var pitchClass = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// NoteToMIDI converts a name like "F#" or "Bb" at octave to a MIDI number.
func NoteToMIDI(name string, octave int) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownNote)
	}
	pc, ok := pitchClass[name[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNote, name)
	}
	for _, acc := range name[1:] {
		switch acc {
		case '#':
			pc++
		case 'b':
			pc--
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownNote, name)
		}
	}
	m := (octave+1)*12 + pc
	if m < 0 || m > 127 {
		return 0, fmt.Errorf("%w: %s%d out of MIDI range", ErrUnknownNote, name, octave)
	}
	return m, nil
}

// MIDIFrequency converts a MIDI note number to Hz
func MIDIFrequency(m int) float64 {
	return 440 * math.Pow(2, float64(m-69)/12)
}
