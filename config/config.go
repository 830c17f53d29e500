package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tonegrid/audio"
)

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid config")

// maxInstruments matches the tile slot count in the sequencer
const maxInstruments = 8

// GridConfig sets the grid size
type GridConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TempoConfig sets the loop speed; one loop is one 4/4 bar
type TempoConfig struct {
	BPM int `json:"bpm"`
}

// AudioConfig controls synthesis and output
type AudioConfig struct {
	SampleRate     int     `json:"sampleRate"`
	BufferMs       int     `json:"bufferMs"`
	VoicesPerNote  int     `json:"voicesPerNote"`
	HighVolume     float64 `json:"highVolume"` // dB
	LowVolume      float64 `json:"lowVolume"`  // dB
	BaseOctave     int     `json:"baseOctave"`
	NoteTailFactor int     `json:"noteTailFactor"`
}

// InstrumentConfig is one timbre. Times are in seconds.
type InstrumentConfig struct {
	Name         string  `json:"name"`
	Wave         string  `json:"wave"`
	Attack       float64 `json:"attack"`
	Decay        float64 `json:"decay"`
	Sustain      float64 `json:"sustain"`
	Release      float64 `json:"release"`
	FilterCutoff float64 `json:"filterCutoff,omitempty"`
}

// RenderConfig controls the terminal grid and particles
type RenderConfig struct {
	TileCols         int     `json:"tileCols"`
	TileRows         int     `json:"tileRows"`
	FPS              int     `json:"fps"`
	ParticleCapacity int     `json:"particleCapacity"`
	ParticleLifetime float64 `json:"particleLifetime"`
	BurstSpeed       float64 `json:"burstSpeed"`
	BurstCount       int     `json:"burstCount"`
	Palette          string  `json:"palette,omitempty"` // GIMP .gpl path
}

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName    string `json:"portName"`
	AutoConnect bool   `json:"autoConnect"`
}

// MIDIConfig sets note output and controllers
type MIDIConfig struct {
	OutputPort    string             `json:"outputPort,omitempty"`
	OutputChannel int                `json:"outputChannel,omitempty"`
	ExportPath    string             `json:"exportPath,omitempty"`
	Controllers   []ControllerConfig `json:"controllers,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastSeed       string `json:"lastSeed,omitempty"`
	LastInstrument int    `json:"lastInstrument,omitempty"`
	Muted          bool   `json:"muted,omitempty"`
	Project        string `json:"project,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Grid        GridConfig         `json:"grid"`
	Tempo       TempoConfig        `json:"tempo"`
	Audio       AudioConfig        `json:"audio"`
	Instruments []InstrumentConfig `json:"instruments"`
	Render      RenderConfig       `json:"render"`
	MIDI        MIDIConfig         `json:"midi,omitempty"`
	UI          UIConfig           `json:"ui,omitempty"`

	// guards MIDI.Controllers; the device scanner consults it off the UI goroutine
	mu sync.Mutex
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{
		Grid:  GridConfig{Width: 16, Height: 16},
		Tempo: TempoConfig{BPM: 120},
		Audio: AudioConfig{
			SampleRate:     44100,
			BufferMs:       100,
			VoicesPerNote:  3,
			HighVolume:     -10,
			LowVolume:      -20,
			BaseOctave:     3,
			NoteTailFactor: 6,
		},
		Render: RenderConfig{
			TileCols:         3,
			TileRows:         1,
			FPS:              60,
			ParticleCapacity: 2000,
			ParticleLifetime: 40,
			BurstSpeed:       0.5,
			BurstCount:       20,
		},
		MIDI: MIDIConfig{
			OutputChannel: 1,
			ExportPath:    "tonegrid.mid",
			Controllers: []ControllerConfig{
				{PortName: "Launchpad X LPX MIDI", AutoConnect: true},
			},
		},
		UI: UIConfig{Project: "default"},
	}
	for _, t := range audio.DefaultTimbres() {
		cfg.Instruments = append(cfg.Instruments, FromTimbre(t))
	}
	return cfg
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tonegrid"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads path over the defaults. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	c.mu.Lock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges the rest of the program relies on
func (c *Config) Validate() error {
	switch {
	case c.Grid.Width < 1 || c.Grid.Height < 1:
		return fmt.Errorf("%w: grid %dx%d", ErrInvalid, c.Grid.Width, c.Grid.Height)
	case c.Tempo.BPM < 1 || c.Tempo.BPM > 999:
		return fmt.Errorf("%w: tempo %d", ErrInvalid, c.Tempo.BPM)
	case c.Audio.SampleRate < 8000:
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.Audio.SampleRate)
	case c.Audio.VoicesPerNote < 1:
		return fmt.Errorf("%w: voices per note %d", ErrInvalid, c.Audio.VoicesPerNote)
	case len(c.Instruments) == 0 || len(c.Instruments) > maxInstruments:
		return fmt.Errorf("%w: %d instruments", ErrInvalid, len(c.Instruments))
	case c.Render.FPS < 1:
		return fmt.Errorf("%w: fps %d", ErrInvalid, c.Render.FPS)
	case c.Render.TileCols < 1 || c.Render.TileRows < 1:
		return fmt.Errorf("%w: tile %dx%d", ErrInvalid, c.Render.TileCols, c.Render.TileRows)
	case c.MIDI.OutputChannel < 0 || c.MIDI.OutputChannel > 16:
		return fmt.Errorf("%w: midi channel %d", ErrInvalid, c.MIDI.OutputChannel)
	}
	if _, err := c.Timbres(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// BarDuration is one 4/4 bar at the configured tempo
func (c *Config) BarDuration() time.Duration {
	return time.Duration(4 * float64(time.Minute) / float64(c.Tempo.BPM))
}

// Timbres converts the instrument list for the synth
func (c *Config) Timbres() ([]audio.Timbre, error) {
	out := make([]audio.Timbre, 0, len(c.Instruments))
	for _, ic := range c.Instruments {
		wave, err := audio.ParseWave(ic.Wave)
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", ic.Name, err)
		}
		if ic.Sustain < 0 || ic.Sustain > 1 {
			return nil, fmt.Errorf("instrument %q: sustain %v outside 0-1", ic.Name, ic.Sustain)
		}
		out = append(out, audio.Timbre{
			Name:         ic.Name,
			Wave:         wave,
			Attack:       seconds(ic.Attack),
			Decay:        seconds(ic.Decay),
			Sustain:      ic.Sustain,
			Release:      seconds(ic.Release),
			FilterCutoff: ic.FilterCutoff,
		})
	}
	return out, nil
}

// FromTimbre is the inverse of Timbres for one instrument
func FromTimbre(t audio.Timbre) InstrumentConfig {
	return InstrumentConfig{
		Name:         t.Name,
		Wave:         string(t.Wave),
		Attack:       t.Attack.Seconds(),
		Decay:        t.Decay.Seconds(),
		Sustain:      t.Sustain,
		Release:      t.Release.Seconds(),
		FilterCutoff: t.FilterCutoff,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findController(portName)
}

func (c *Config) findController(portName string) *ControllerConfig {
	for i := range c.MIDI.Controllers {
		if c.MIDI.Controllers[i].PortName == portName {
			return &c.MIDI.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addController(ctrl)
}

func (c *Config) addController(ctrl ControllerConfig) {
	for i := range c.MIDI.Controllers {
		if c.MIDI.Controllers[i].PortName == ctrl.PortName {
			c.MIDI.Controllers[i] = ctrl
			return
		}
	}
	c.MIDI.Controllers = append(c.MIDI.Controllers, ctrl)
}

// AllowController reports whether a newly seen controller should be used.
// Unknown controllers are allowed and remembered.
func (c *Config) AllowController(portName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctrl := c.findController(portName); ctrl != nil {
		return ctrl.AutoConnect
	}
	c.addController(ControllerConfig{PortName: portName, AutoConnect: true})
	return true
}
