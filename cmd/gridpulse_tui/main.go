package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/gridpulse-go"
	"github.com/cbegin/gridpulse-go/internal/cli"
)

const frameRate = 30

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f55"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
)

type frameMsg time.Time

type model struct {
	in     *gridpulse.Instrument
	grid   *gridRenderer
	width  int
	height int

	active bool
	level  float64
	err    error
}

func newModel(in *gridpulse.Instrument) model {
	return model{
		in:     in,
		grid:   newGridRenderer(),
		width:  80,
		height: 24,
		level:  1,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case frameMsg:
		if m.active {
			m.in.Frame()
		}
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if err := m.in.Stop(); err != nil {
			m.err = err
		}
		return m, tea.Quit
	case "+", "=":
		return m.adjustLevel(0.1), nil
	case "-":
		return m.adjustLevel(-0.1), nil
	}
	if !m.active {
		m.in.SetViewportWidth(m.width * int(pxPerCol))
		if err := m.in.Activate(context.Background()); err != nil {
			m.err = err
			return m, nil
		}
		m.active = true
		m.err = nil
	}
	return m, nil
}

// adjustLevel moves the tempo scalar unless the tempo is pinned.
func (m model) adjustLevel(delta float64) model {
	if m.in.FixedTempo() {
		return m
	}
	m.level = min(max(m.level+delta, 0), 1)
	m.in.SetBatteryLevel(m.level)
	return m
}

func (m model) View() string {
	s := m.in.Snapshot()
	gridH := max(m.height-1, 1)
	return m.grid.render(s, m.width, gridH) + "\n" + m.statusLine(s)
}

func (m model) statusLine(s gridpulse.Snapshot) string {
	if m.err != nil {
		return errorStyle.Render("error: " + m.err.Error())
	}
	if !m.active {
		return hintStyle.Render("press any key to start  q quit")
	}
	line := fmt.Sprintf("%.0f BPM  %d cells  density %.2f  gen %d  step %d",
		s.BPM, len(s.Cells), s.Density, s.Generation, s.GlobalStep)
	hint := "  +/- tempo  q quit"
	if m.in.FixedTempo() {
		hint = "  q quit"
	}
	return statusStyle.Render(line) + hintStyle.Render(hint)
}

func main() {
	f := cli.Register(flag.CommandLine)
	flag.Parse()

	cfg, err := f.Load(flag.CommandLine)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	in, cleanup, err := cli.Build(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	p := tea.NewProgram(newModel(in), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cleanup()
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
