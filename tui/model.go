package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-stepseq/midi"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
)

// BPM range and increment of the tempo keys
const (
	MinBPM  = 30
	MaxBPM  = 400
	BPMStep = 10
)

// DefaultTrackSteps is the length of a track added with "a"
const DefaultTrackSteps = 8

// Engine is the sequencer surface the UI drives
type Engine interface {
	Snapshot() sequencer.State[midi.Params]
	AddTrack(params midi.Params, numberOfSteps int, active ...int) error
	RemoveTrack(index int) error
	SetParameters(index int, params midi.Params) error
	SetNumberOfSteps(index, n int) error
	ToggleStep(trackIndex, stepIndex int) error
	SetNextStepStrategy(strategy sequencer.Strategy[midi.Params])
	OnTick() error
}

// Transport is the clock; *sequencer.Ticker satisfies it
type Transport interface {
	Start()
	Stop()
	Running() bool
	BPM() float64
	SetBPM(bpm float64) error
}

// Updates coalesces state changes into a wake-up signal for the UI.
// Observe is registered with Sequencer.OnStateChange and never blocks.
type Updates struct {
	C chan struct{}
}

func NewUpdates() *Updates {
	return &Updates{C: make(chan struct{}, 1)}
}

func (u *Updates) Observe(sequencer.State[midi.Params]) {
	select {
	case u.C <- struct{}{}:
	default:
	}
}

type UpdateMsg struct{}

func ListenForUpdates(u *Updates) tea.Cmd {
	return func() tea.Msg {
		<-u.C
		return UpdateMsg{}
	}
}

type Model struct {
	Engine    Engine
	Transport Transport // may be nil
	Updates   *Updates  // may be nil
	Theme     *theme.Theme

	// Save persists the current state (key "w"); may be nil
	Save func(sequencer.State[midi.Params]) error
	// OnStrategy is told the name of a newly selected strategy; may be nil
	OnStrategy func(name string)

	state    sequencer.State[midi.Params]
	track    int
	step     int
	strategy int
	status   string
	quitting bool
}

// NewModel creates the model; strategy is the name currently installed on
// the engine.
func NewModel(engine Engine, transport Transport, updates *Updates, th *theme.Theme, strategy string) Model {
	if th == nil {
		th = theme.New(nil)
	}
	m := Model{
		Engine:    engine,
		Transport: transport,
		Updates:   updates,
		Theme:     th,
		state:     engine.Snapshot(),
	}
	for i, name := range midi.StrategyNames() {
		if name == strategy {
			m.strategy = i
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.Updates == nil {
		return nil
	}
	return ListenForUpdates(m.Updates)
}

// State returns the snapshot the model last rendered from
func (m Model) State() sequencer.State[midi.Params] {
	return m.state
}

// Cursor returns the selected track and step
func (m Model) Cursor() (track, step int) {
	return m.track, m.step
}

// Status returns the last status line message
func (m Model) Status() string {
	return m.status
}

// Strategy returns the selected strategy name
func (m Model) Strategy() string {
	return midi.StrategyNames()[m.strategy]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			if m.Transport != nil {
				m.Transport.Stop()
			}
			return m, tea.Quit
		}
		m.status = ""
		m.report(m.handleKey(msg.String()))
		m.refresh()

	case UpdateMsg:
		m.refresh()
		return m, ListenForUpdates(m.Updates)
	}

	return m, nil
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = err.Error()
	}
}

// refresh re-reads the engine and keeps the cursor inside the grid
func (m *Model) refresh() {
	m.state = m.Engine.Snapshot()
	n := len(m.state.Tracks)
	if m.track >= n {
		m.track = max(n-1, 0)
	}
	if n == 0 {
		m.step = 0
		return
	}
	if steps := m.state.Tracks[m.track].NumberOfSteps; m.step >= steps {
		m.step = steps - 1
	}
}

func (m *Model) selected() (midi.Params, bool) {
	if m.track >= len(m.state.Tracks) {
		return midi.Params{}, false
	}
	return m.state.Tracks[m.track].Parameters, true
}

func (m *Model) handleKey(key string) error {
	switch key {
	case "up", "k":
		if m.track > 0 {
			m.track--
		}
	case "down", "j":
		if m.track < len(m.state.Tracks)-1 {
			m.track++
		}
	case "left", "h":
		if m.step > 0 {
			m.step--
		}
	case "right", "l":
		if len(m.state.Tracks) > 0 && m.step < m.state.Tracks[m.track].NumberOfSteps-1 {
			m.step++
		}

	case " ", "enter":
		if len(m.state.Tracks) == 0 {
			return nil
		}
		return m.Engine.ToggleStep(m.track, m.step)

	case "a":
		if err := m.Engine.AddTrack(midi.DefaultParams(), DefaultTrackSteps); err != nil {
			return err
		}
		m.track = len(m.state.Tracks)
		m.step = 0
	case "x", "d":
		if len(m.state.Tracks) == 0 {
			return nil
		}
		return m.Engine.RemoveTrack(m.track)

	case "]":
		if len(m.state.Tracks) == 0 {
			return nil
		}
		return m.Engine.SetNumberOfSteps(m.track, m.state.Tracks[m.track].NumberOfSteps+1)
	case "[":
		if len(m.state.Tracks) == 0 || m.state.Tracks[m.track].NumberOfSteps == 1 {
			return nil
		}
		return m.Engine.SetNumberOfSteps(m.track, m.state.Tracks[m.track].NumberOfSteps-1)

	case "c", "C", "n", "N":
		p, ok := m.selected()
		if !ok {
			return nil
		}
		switch key {
		case "c":
			p.Channel = (p.Channel + 1) % 16
		case "C":
			p.Channel = (p.Channel + 15) % 16
		case "n":
			p.Note = (p.Note + 1) % 128
		case "N":
			p.Note = (p.Note + 127) % 128
		}
		return m.Engine.SetParameters(m.track, p)

	case "t":
		return m.Engine.OnTick()

	case "p":
		if m.Transport == nil {
			return nil
		}
		if m.Transport.Running() {
			m.Transport.Stop()
		} else {
			m.Transport.Start()
		}
	case "+", "=":
		return m.nudgeBPM(BPMStep)
	case "-", "_":
		return m.nudgeBPM(-BPMStep)

	case "s":
		names := midi.StrategyNames()
		m.strategy = (m.strategy + 1) % len(names)
		name := names[m.strategy]
		m.Engine.SetNextStepStrategy(midi.Strategies()[name])
		if m.OnStrategy != nil {
			m.OnStrategy(name)
		}
		m.status = "strategy: " + name

	case "w":
		if m.Save == nil {
			return nil
		}
		if err := m.Save(m.Engine.Snapshot()); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		m.status = "saved"
	}
	return nil
}

func (m *Model) nudgeBPM(delta float64) error {
	if m.Transport == nil {
		return nil
	}
	bpm := min(max(m.Transport.BPM()+delta, MinBPM), MaxBPM)
	return m.Transport.SetBPM(bpm)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName formats a MIDI note number, 60 is C4
func NoteName(n uint8) string {
	return fmt.Sprintf("%s%d", noteNames[n%12], int(n)/12-1)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	activeStyle := lipgloss.NewStyle().Foreground(m.Theme.Active())
	currentStyle := lipgloss.NewStyle().Reverse(true)
	cursorStyle := lipgloss.NewStyle().Underline(true).Foreground(m.Theme.Cursor())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	bpm := 0.0
	if m.Transport != nil {
		bpm = m.Transport.BPM()
		if m.Transport.Running() {
			playState = "PLAY"
		}
	}
	header := headerStyle.Render(fmt.Sprintf("go-stepseq  %s  %3.0fbpm  %s", playState, bpm, m.Strategy()))

	var grid strings.Builder
	if len(m.state.Tracks) == 0 {
		grid.WriteString(dimStyle.Render("no tracks, press a to add one"))
		grid.WriteString("\n")
	}
	for ti, tr := range m.state.Tracks {
		marker := " "
		if ti == m.track {
			marker = string(m.Theme.Symbols.Playhead)
		}
		grid.WriteString(fgStyle.Render(fmt.Sprintf("%s ch%-2d %-4s ", marker, tr.Parameters.Channel+1, NoteName(tr.Parameters.Note))))
		for si, st := range tr.Steps {
			sym := string(m.Theme.Symbols.StepEmpty)
			style := dimStyle
			if st.Active {
				sym = string(m.Theme.Symbols.StepActive)
				style = activeStyle
			}
			if st.Current {
				style = style.Inherit(currentStyle)
			}
			if ti == m.track && si == m.step {
				style = cursorStyle.Inherit(style)
			}
			grid.WriteString(style.Render(sym))
		}
		grid.WriteString("\n")
	}

	help := dimStyle.Render("hjkl:nav  space:toggle  a/x:track  [/]:steps  c/C n/N:ch/note  t:tick  p:play  +/-:tempo  s:strategy  w:save  q:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(grid.String())
	out.WriteString("\n")
	out.WriteString(help)
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	}

	return out.String()
}
