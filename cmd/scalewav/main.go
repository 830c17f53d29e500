// scalewav renders every configured instrument's scale pass to <name>.wav,
// the same buffer the sequencer slices its voices from.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gopxl/beep"

	"tonegrid/audio"
	"tonegrid/config"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/tonegrid/config.json)")
	outDir := flag.String("out", ".", "directory for the wav files")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := render(cfg, *outDir); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func render(cfg *config.Config, outDir string) error {
	timbres, err := cfg.Timbres()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	synth := audio.SynthRenderer{SampleRate: beep.SampleRate(cfg.Audio.SampleRate)}
	scale := audio.Pentatonic(cfg.Grid.Height, cfg.Audio.BaseOctave)
	noteLen := cfg.BarDuration() / time.Duration(cfg.Grid.Width)
	noteOffset := noteLen * time.Duration(max(1, cfg.Audio.NoteTailFactor))

	for _, timbre := range timbres {
		buf, err := synth.Render(scale, timbre, noteLen, noteOffset)
		if err != nil {
			return fmt.Errorf("%s: %w", timbre.Name, err)
		}
		path := filepath.Join(outDir, timbre.Name+".wav")
		if err := audio.WriteWAV(path, buf); err != nil {
			return err
		}
		fmt.Printf("%-10s %2d notes  %6.2fs  %s\n", timbre.Name, len(scale), float64(buf.Len())/float64(synth.SampleRate), path)
	}
	return nil
}
