// Package tui provides a terminal user interface for tonebridge
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/tonebridge/pkg/converter"
	"github.com/james-see/tonebridge/pkg/device"
)

// Piezo amber on slate
var (
	amber = lipgloss.Color("#FFB000")
	lime  = lipgloss.Color("#9EF01A")
	ash   = lipgloss.Color("#B8B8B8")
	slate = lipgloss.Color("#2B2D42")
	dim   = lipgloss.Color("#6C6F7D")
	red   = lipgloss.Color("#FF4D4D")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(slate).Background(amber).Padding(0, 1).MarginBottom(1)
	itemStyle   = lipgloss.NewStyle().Foreground(ash).PaddingLeft(2)
	cursorStyle = lipgloss.NewStyle().Foreground(amber).Bold(true).PaddingLeft(2)
	hintStyle   = lipgloss.NewStyle().Foreground(dim).PaddingLeft(4)
	okStyle     = lipgloss.NewStyle().Foreground(lime).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(amber)
	errStyle    = lipgloss.NewStyle().Foreground(red).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(dim).Width(10)
	footerStyle = lipgloss.NewStyle().Foreground(dim).MarginTop(1)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(amber).Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConverting
	StateResult
	StateMonitor
)

type actionKind int

const (
	actionMonitor actionKind = iota
	actionConvert
	actionQuit
)

// action is one menu entry
type action struct {
	kind  actionKind
	title string
	hint  string
	from  converter.Format
	to    converter.Format
}

var actions = []action{
	{kind: actionMonitor, title: "Monitor device", hint: "live playback status; space toggles, p plays, s stops"},
	{kind: actionConvert, title: "MIDI → melody", hint: "flatten a MIDI file into an uploadable melody", from: converter.FormatMIDI, to: converter.FormatMelody},
	{kind: actionConvert, title: "melody → MIDI", hint: "open a melody in any sequencer", from: converter.FormatMelody, to: converter.FormatMIDI},
	{kind: actionConvert, title: "melody → C header", hint: "melody[] and durations[] arrays for a sketch", from: converter.FormatMelody, to: converter.FormatHeader},
	{kind: actionConvert, title: "melody → WAV", hint: "square-wave preview", from: converter.FormatMelody, to: converter.FormatWAV},
	{kind: actionConvert, title: "PCM → melody", hint: "decode a PC speaker capture", from: converter.FormatPCM, to: converter.FormatMelody},
	{kind: actionQuit, title: "Quit"},
}

var inputTypes = map[converter.Format][]string{
	converter.FormatMIDI:   {".mid", ".midi"},
	converter.FormatMelody: {".bin", ".mel"},
	converter.FormatPCM:    {".pcm", ".raw", ".s8"},
}

var outputExt = map[converter.Format]string{
	converter.FormatMIDI:   ".mid",
	converter.FormatMelody: ".bin",
	converter.FormatHeader: ".h",
	converter.FormatWAV:    ".wav",
}

// Model represents the TUI model
type Model struct {
	state   State
	cursor  int
	picker  filepicker.Model
	spinner spinner.Model
	bar     progress.Model

	job struct {
		action action
		input  string
		output string
		err    error
	}

	remote   Remote
	snapshot device.Snapshot
	haveSnap bool
	pollErr  error
}

type convertedMsg struct {
	output string
	err    error
}

// New creates a TUI model; a nil remote disables the monitor
func New(remote Remote) Model {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(amber)

	return Model{
		state:   StateMenu,
		picker:  fp,
		spinner: s,
		bar:     progress.New(progress.WithSolidFill(string(amber)), progress.WithoutPercentage(), progress.WithWidth(40)),
		remote:  remote,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state == StateFilePicker {
		return m.updatePicker(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.picker.SetHeight(max(msg.Height-12, 5))
		m.bar.Width = min(max(msg.Width-24, 10), 60)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case convertedMsg:
		m.state = StateResult
		m.job.output = msg.output
		m.job.err = msg.err
		return m, nil

	case pollTickMsg, statusMsg, actionDoneMsg:
		return m.updateMonitorMsg(msg)

	case tea.KeyMsg:
		if k := msg.String(); k == "ctrl+c" || (k == "q" && m.state != StateConverting) {
			return m, tea.Quit
		}
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			if k := msg.String(); k == "enter" || k == "esc" {
				m.state = StateMenu
				m.job.err = nil
			}
			return m, nil
		case StateMonitor:
			return m.updateMonitorKey(msg)
		}
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			m.state = StateMenu
			return m, nil
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.job.input = path
		m.state = StateConverting
		return m, tea.Batch(m.spinner.Tick, convert(m.job.action, path))
	}
	return m, cmd
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = min(m.cursor+1, len(actions)-1)
	case "enter":
		a := actions[m.cursor]
		switch a.kind {
		case actionQuit:
			return m, tea.Quit
		case actionMonitor:
			return m.openMonitor()
		default:
			m.job.action = a
			m.state = StateFilePicker
			m.picker.AllowedTypes = inputTypes[a.from]
			return m, m.picker.Init()
		}
	}
	return m, nil
}

// convert runs one file conversion off the UI goroutine
func convert(a action, input string) tea.Cmd {
	return func() tea.Msg {
		output := strings.TrimSuffix(input, filepath.Ext(input)) + outputExt[a.to]
		if err := converter.New().ConvertFile(input, output); err != nil {
			return convertedMsg{err: err}
		}
		return convertedMsg{output: output}
	}
}

// View renders the TUI
func (m Model) View() string {
	var body, keys string
	switch m.state {
	case StateMenu:
		body, keys = m.viewMenu(), "↑/↓ move • enter select • q quit"
	case StateFilePicker:
		body, keys = m.viewPicker(), "enter pick • esc back • q quit"
	case StateConverting:
		body = panelStyle.Render(fmt.Sprintf("%s converting %s (%s → %s)",
			m.spinner.View(), filepath.Base(m.job.input), m.job.action.from, m.job.action.to))
	case StateResult:
		body, keys = m.viewResult(), "enter continue • q quit"
	case StateMonitor:
		body, keys = m.viewMonitor(), "space toggle • p play • s stop • esc back • q quit"
	}
	return lipgloss.JoinVertical(lipgloss.Left, banner(), body, footerStyle.Render(keys))
}

func (m Model) viewMenu() string {
	lines := []string{headerStyle.Render("TONEBRIDGE")}
	for i, a := range actions {
		if i != m.cursor {
			lines = append(lines, itemStyle.Render("  "+a.title))
			continue
		}
		lines = append(lines, cursorStyle.Render("▸ "+a.title))
		if a.hint != "" {
			lines = append(lines, hintStyle.Render(a.hint))
		}
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewPicker() string {
	title := headerStyle.Render(fmt.Sprintf("PICK A %s FILE", strings.ToUpper(string(m.job.action.from))))
	return lipgloss.JoinVertical(lipgloss.Left, title, m.picker.View())
}

func (m Model) viewResult() string {
	if m.job.err != nil {
		return panelStyle.Render(headerStyle.Render("FAILED") + "\n" + errStyle.Render("✗ "+m.job.err.Error()))
	}
	return panelStyle.Render(fmt.Sprintf("%s\n%s\n\n%s%s\n%s%s",
		headerStyle.Render("DONE"),
		okStyle.Render("✓ converted"),
		labelStyle.Render("from"), filepath.Base(m.job.input),
		labelStyle.Render("to"), filepath.Base(m.job.output)))
}

func banner() string {
	return warnStyle.Render(`
 ┌┬┐┌─┐┌┐┌┌─┐┌┐ ┬─┐┬┌┬┐┌─┐┌─┐
  │ │ ││││├┤ ├┴┐├┬┘│ ││││ ┬├┤
  ┴ └─┘┘└┘└─┘└─┘┴└─┴─┴┘└─┘└─┘`)
}

// Run starts the TUI application
func Run(remote Remote) error {
	_, err := tea.NewProgram(New(remote), tea.WithAltScreen()).Run()
	return err
}
