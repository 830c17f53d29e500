package midi

import (
	"fmt"
	"io"
	"os"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ticksPerQuarter is the SMF resolution
const ticksPerQuarter = 960

// PatternNote is one armed cell: a step in the bar and its pitch
type PatternNote struct {
	Step     int
	Key      uint8
	Velocity uint8
}

// PatternTrack is one instrument's notes
type PatternTrack struct {
	Name    string
	Channel uint8
	Notes   []PatternNote
}

// Pattern is one looping 4/4 bar divided into Steps
type Pattern struct {
	Steps  int
	BPM    float64
	Tracks []PatternTrack
}

// WritePattern writes p to path as a Standard MIDI File
func WritePattern(path string, p Pattern) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := EncodePattern(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type timedMsg struct {
	tick uint32
	off  bool
	msg  gomidi.Message
}

// EncodePattern writes a tempo track then one track per instrument. Each
// note lasts one step.
func EncodePattern(w io.Writer, p Pattern) error {
	if p.Steps < 1 {
		return fmt.Errorf("pattern has %d steps", p.Steps)
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	barTicks := uint32(4 * ticksPerQuarter)
	stepTicks := barTicks / uint32(p.Steps)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(p.BPM))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	for i, pt := range p.Tracks {
		var msgs []timedMsg
		for _, n := range pt.Notes {
			if n.Step < 0 || n.Step >= p.Steps {
				return fmt.Errorf("track %d: step %d out of range", i, n.Step)
			}
			vel := n.Velocity
			if vel == 0 {
				vel = 100
			}
			start := uint32(n.Step) * stepTicks
			msgs = append(msgs,
				timedMsg{tick: start, msg: gomidi.NoteOn(pt.Channel, n.Key, vel)},
				timedMsg{tick: start + stepTicks - 1, off: true, msg: gomidi.NoteOff(pt.Channel, n.Key)},
			)
		}
		sort.SliceStable(msgs, func(a, b int) bool {
			if msgs[a].tick != msgs[b].tick {
				return msgs[a].tick < msgs[b].tick
			}
			return msgs[a].off && !msgs[b].off
		})

		var track smf.Track
		if pt.Name != "" {
			track.Add(0, smf.MetaTrackSequenceName(pt.Name))
		}
		var last uint32
		for _, m := range msgs {
			track.Add(m.tick-last, m.msg)
			last = m.tick
		}
		track.Close(barTicks - last)
		if err := sm.Add(track); err != nil {
			return fmt.Errorf("add track %d: %w", i, err)
		}
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}
