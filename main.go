package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep"

	"tonegrid/audio"
	"tonegrid/config"
	"tonegrid/debug"
	"tonegrid/midi"
	"tonegrid/sequencer"
	"tonegrid/theme"
	"tonegrid/transport"
	"tonegrid/tui"
)

func main() {
	seed := flag.String("s", "", "share string to load")
	configPath := flag.String("config", "", "config file (default ~/.config/tonegrid/config.json)")
	debugLog := flag.Bool("debug", false, "write a debug log to ~/.config/tonegrid/debug.log")
	silent := flag.Bool("silent", false, "run without audio output")
	flag.Parse()

	if *debugLog {
		if err := debug.Enable(""); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *seed, *silent); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "saving config: %v\n", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func saveConfig(cfg *config.Config, path string) error {
	if path != "" {
		return cfg.SaveTo(path)
	}
	return cfg.Save()
}

func run(cfg *config.Config, seed string, silent bool) error {
	// Load theme
	var palette *theme.Palette
	if cfg.Render.Palette != "" {
		p, err := theme.LoadGPL(cfg.Render.Palette)
		if err != nil {
			return fmt.Errorf("palette: %w", err)
		}
		palette = p
	}
	th := theme.New(palette)

	timbres, err := cfg.Timbres()
	if err != nil {
		return err
	}

	// One loop is one bar
	tr := transport.New(transport.SystemClock(), cfg.BarDuration())

	sampleRate := beep.SampleRate(cfg.Audio.SampleRate)
	engine := audio.NewEngine(sampleRate)
	synth := audio.SynthRenderer{SampleRate: sampleRate}

	fmt.Println("tonegrid")
	fmt.Printf("Rendering %d instruments...\n", len(timbres))

	var instruments []*sequencer.Instrument
	for _, timbre := range timbres {
		opts := sequencer.InstrumentOptions{
			Width:          cfg.Grid.Width,
			Height:         cfg.Grid.Height,
			Timbre:         timbre,
			BaseOctave:     cfg.Audio.BaseOctave,
			VoicesPerNote:  cfg.Audio.VoicesPerNote,
			HighVolume:     cfg.Audio.HighVolume,
			LowVolume:      cfg.Audio.LowVolume,
			NoteTailFactor: cfg.Audio.NoteTailFactor,
		}
		inst, err := sequencer.NewInstrument(tr, synth, opts)
		if err != nil {
			return err
		}
		engine.Add(inst.Voices().Streamers()...)
		instruments = append(instruments, inst)
	}

	// Triggered notes also go out over MIDI when a port is configured
	if port := cfg.MIDI.OutputPort; port != "" {
		out, err := midi.OpenOutput(port, cfg.MIDI.OutputChannel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "midi output: %v\n", err)
		} else {
			defer out.Close()
			for _, inst := range instruments {
				inst.SetSink(out)
			}
		}
	}

	grid, err := sequencer.NewGrid(cfg.Grid.Width, cfg.Grid.Height, instruments)
	if err != nil {
		return err
	}
	grid.SetMuter(engine)
	if err := grid.SelectInstrument(cfg.UI.LastInstrument); err != nil {
		debug.Log("main", "last instrument %d: %v", cfg.UI.LastInstrument, err)
	}
	grid.SetMuted(cfg.UI.Muted)

	if seed == "" {
		seed = cfg.UI.LastSeed
	}
	if err := grid.Deserialize(seed); err != nil {
		if !errors.Is(err, sequencer.ErrMalformedState) {
			return err
		}
		fmt.Fprintf(os.Stderr, "seed: %v (loaded what was readable)\n", err)
	}

	if !silent {
		if err := engine.Start(time.Duration(cfg.Audio.BufferMs) * time.Millisecond); err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		defer engine.Close()
	}

	manager := sequencer.NewManager(grid, tr, cfg.Tempo.BPM)
	manager.OnStateChange(func(state string) {
		debug.Log("main", "state %q", state)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.StartRuntime(ctx)
	defer manager.Stop()

	// Hot-plug detection; ports switched off in the config are never opened
	deviceMgr := midi.NewDeviceManager(cfg.AllowController)
	go deviceMgr.Run(ctx)

	m := tui.NewModel(manager, deviceMgr, th, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())
	if _, err := p.Run(); err != nil {
		return err
	}

	cfg.UI.LastSeed = manager.State()
	cfg.UI.LastInstrument = grid.CurrentInstrument()
	cfg.UI.Muted = grid.Muted()
	return nil
}
