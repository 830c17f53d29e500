package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tonegrid/config"
	"tonegrid/coord"
	"tonegrid/debug"
	"tonegrid/midi"
	"tonegrid/particle"
	"tonegrid/render"
	"tonegrid/sequencer"
	"tonegrid/theme"
	"tonegrid/widgets"
)

// grid origin on screen: header, blank line, playhead marker row
const (
	gridLeft = 2
	gridTop  = 3
)

var helpKeys = []widgets.KeyBinding{
	{Key: "1-8", Desc: "instrument"},
	{Key: "c", Desc: "clear"},
	{Key: "m", Desc: "mute"},
	{Key: "e", Desc: "export"},
	{Key: "s", Desc: "save"},
	{Key: "l", Desc: "load"},
	{Key: "p", Desc: "pads"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

var helpSections = []widgets.KeySection{
	{Title: "Mouse", Keys: []widgets.KeyBinding{
		{Key: "click", Desc: "toggle a cell"},
		{Key: "drag", Desc: "arm or disarm every cell passed"},
	}},
	{Title: "Grid", Keys: []widgets.KeyBinding{
		{Key: "1-8", Desc: "select instrument"},
		{Key: "c", Desc: "clear every instrument"},
		{Key: "m", Desc: "mute output"},
	}},
	{Title: "Files", Keys: []widgets.KeyBinding{
		{Key: "e", Desc: "export pattern as MIDI file"},
		{Key: "s", Desc: "save project snapshot"},
		{Key: "l", Desc: "load latest snapshot"},
	}},
}

// dragState remembers whether the current press arms or disarms
type dragState struct {
	active bool
	arm    bool
	last   sequencer.Cell
}

type Model struct {
	Manager   *sequencer.Manager
	DeviceMgr *midi.DeviceManager // may be nil
	Theme     *theme.Theme
	Config    *config.Config

	surface  *Surface
	renderer *render.Renderer
	frame    time.Duration
	tileCols int
	tileRows int

	mouseX, mouseY int
	drag           *dragState
	status         string
	showPads       bool
	showHelp       bool
	quitting       bool
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

type frameMsg time.Time

// NewModel builds the terminal surface and installs its renderer on the grid
func NewModel(manager *sequencer.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme, cfg *config.Config) Model {
	grid := manager.Grid()
	rc := cfg.Render

	surface := NewSurface(grid.Width(), grid.Height(), rc.TileCols, rc.TileRows, render.DefaultSprites(th), th.Symbols)
	w, h := surface.Size()
	pool := particle.New(rc.ParticleCapacity, w, h, 0)
	if rc.ParticleLifetime > 0 {
		pool.Lifetime = rc.ParticleLifetime
	}

	opts := render.DefaultOptions()
	opts.BurstSpeed = rc.BurstSpeed
	opts.BurstCount = rc.BurstCount
	renderer := render.New(surface, pool, opts)
	grid.SetRenderer(renderer)

	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
		Config:    cfg,
		surface:   surface,
		renderer:  renderer,
		frame:     time.Second / time.Duration(rc.FPS),
		tileCols:  rc.TileCols,
		tileRows:  rc.TileRows,
		mouseX:    -1,
		mouseY:    -1,
		drag:      &dragState{},
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event := <-deviceMgr.Events()
		return DeviceEventMsg(event)
	}
}

func (m Model) nextFrame() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.nextFrame(), ListenForUpdates(m.Manager)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tea.MouseMsg:
		m.mouseX, m.mouseY = msg.X, msg.Y
		m.handleMouse(msg)

	case frameMsg:
		px, py := m.pointer()
		m.Manager.Grid().Tick(px, py)
		return m, m.nextFrame()

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case DeviceEventMsg:
		m.handleDevice(midi.DeviceEvent(msg))
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.Manager.Stop()
		return m, tea.Quit

	case "1", "2", "3", "4", "5", "6", "7", "8":
		idx := int(key[0] - '1')
		if err := m.Manager.SelectInstrument(idx); err != nil {
			m.status = fmt.Sprintf("no instrument %s", key)
		} else {
			m.status = ""
		}

	case "c":
		m.Manager.ClearAll()
		m.status = "cleared"

	case "m":
		if m.Manager.ToggleMute() {
			m.status = "muted"
		} else {
			m.status = "unmuted"
		}

	case "e":
		path := m.Config.MIDI.ExportPath
		if err := midi.WritePattern(path, m.Manager.Pattern()); err != nil {
			debug.Log("tui", "export: %v", err)
			m.status = "export failed: " + err.Error()
		} else {
			m.status = "exported " + path
		}

	case "s":
		project := m.Config.UI.Project
		name, err := sequencer.SaveProject(project, "", m.Manager.Grid().Capture(m.Manager.Tempo()))
		if err != nil {
			debug.Log("tui", "save: %v", err)
			m.status = "save failed: " + err.Error()
		} else {
			m.status = "saved " + name
		}

	case "l":
		m.status = m.loadLatest()

	case "p":
		m.showPads = !m.showPads

	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) loadLatest() string {
	project := m.Config.UI.Project
	saves, err := sequencer.ListSaves(project)
	if err != nil {
		return "load failed: " + err.Error()
	}
	if len(saves) == 0 {
		return "no saves in " + project
	}
	p, err := sequencer.LoadProject(project, saves[0].Filename)
	if err != nil {
		return "load failed: " + err.Error()
	}
	if err := m.Manager.Grid().Restore(p); err != nil {
		debug.Log("tui", "restore %s: %v", saves[0].Filename, err)
		return "load failed: " + err.Error()
	}
	return "loaded " + saves[0].Filename
}

// tileAt maps a terminal position to a grid cell
func (m Model) tileAt(x, y int) (sequencer.Cell, bool) {
	grid := m.Manager.Grid()
	w, h := m.surface.Size()
	tx, ty, ok := coord.PixelToTile(float64(x-gridLeft)+0.5, float64(y-gridTop)+0.5, grid.Width(), grid.Height(), w, h)
	return sequencer.Cell{X: tx, Y: ty}, ok
}

// pointer is the mouse position in surface pixels
func (m Model) pointer() (float64, float64) {
	if m.mouseX < 0 || m.mouseY < 0 {
		return -1, -1
	}
	return float64(m.mouseX-gridLeft) + 0.5, float64(m.mouseY-gridTop) + 0.5
}

// handleMouse arms on press and drag: the first tile decides whether the
// gesture arms or disarms.
func (m Model) handleMouse(msg tea.MouseMsg) {
	grid := m.Manager.Grid()

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		cell, ok := m.tileAt(msg.X, msg.Y)
		if !ok {
			return
		}
		*m.drag = dragState{active: true, arm: !grid.IsArmed(cell.X, cell.Y), last: cell}
		m.apply(cell)

	case tea.MouseActionMotion:
		if !m.drag.active || msg.Button != tea.MouseButtonLeft {
			return
		}
		cell, ok := m.tileAt(msg.X, msg.Y)
		if !ok || cell == m.drag.last {
			return
		}
		m.drag.last = cell
		m.apply(cell)

	case tea.MouseActionRelease:
		m.drag.active = false
	}
}

func (m Model) apply(cell sequencer.Cell) {
	if err := m.Manager.Grid().SetArmed(cell.X, cell.Y, m.drag.arm); err != nil {
		debug.Log("tui", "arm %d,%d: %v", cell.X, cell.Y, err)
	}
}

func (m Model) handleDevice(event midi.DeviceEvent) {
	switch event.Type {
	case midi.DeviceConnected:
		if event.Controller.Type() == midi.ControllerLaunchpad {
			m.Manager.SetController(event.Controller)
		} else {
			m.Manager.AddKeyboard(event.Controller)
		}
	case midi.DeviceDisconnected:
		if c := m.Manager.Controller(); c != nil && c.ID() == event.ID {
			m.Manager.SetController(nil)
		}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	grid := m.Manager.Grid()
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	seedStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	instStyle := lipgloss.NewStyle().Foreground(m.Theme.Active())
	playheadStyle := lipgloss.NewStyle().Foreground(m.Theme.Success())

	instName := "?"
	if inst, err := grid.Instrument(grid.CurrentInstrument()); err == nil {
		instName = inst.Name()
	}
	header := headerStyle.Render("tonegrid") + "  " +
		instStyle.Render(fmt.Sprintf("%d:%s", grid.CurrentInstrument()+1, instName)) +
		fmt.Sprintf("  %3dbpm", m.Manager.Tempo())
	if grid.Muted() {
		header += "  " + warnStyle.Render("MUTED")
	}
	if m.Manager.Controller() != nil {
		header += "  LP"
	}

	playhead := strings.Repeat(" ", gridLeft+grid.PlayheadColumn()*m.tileCols) +
		playheadStyle.Render(string(m.Theme.Symbols.Playhead))

	indent := strings.Repeat(" ", gridLeft)
	gridView := indent + strings.ReplaceAll(m.surface.View(), "\n", "\n"+indent)

	seed := m.Manager.State()
	if seed == "" {
		seed = "(empty)"
	}

	var out strings.Builder
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(playhead)
	out.WriteString("\n")
	out.WriteString(gridView)
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render("seed ") + seedStyle.Render(seed))
	out.WriteString("\n")
	if m.status != "" {
		out.WriteString(warnStyle.Render(m.status))
	}
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(widgets.RenderKeyLine(helpKeys)))

	if m.showHelp {
		out.WriteString("\n\n")
		out.WriteString(widgets.RenderKeyHelp(helpSections))
	}
	if m.showPads {
		out.WriteString("\n\n")
		out.WriteString(m.padsView())
	}

	return out.String()
}

// padsView previews what the Launchpad shows
func (m Model) padsView() string {
	var pads [widgets.PadCols][widgets.PadCols][3]uint8
	for _, led := range m.Manager.RenderLEDs() {
		if led.Row < widgets.PadCols && led.Col < widgets.PadCols {
			pads[led.Row][led.Col] = led.Color
		}
	}
	legend := strings.Join([]string{
		widgets.RenderLegendItem(sequencer.ColorArmed, "armed", "current instrument"),
		widgets.RenderLegendItem(sequencer.ColorPlayhead, "playhead", "note playing now"),
		widgets.RenderLegendItem(sequencer.ColorOtherInst, "other", "another instrument's note"),
	}, "\n")
	return lipgloss.JoinHorizontal(lipgloss.Top, widgets.RenderPadGrid(pads), "   ", legend)
}
