package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/james-see/tonebridge/pkg/device"
)

const (
	pollInterval  = 200 * time.Millisecond
	remoteTimeout = time.Second
)

var errNoRemote = errors.New("no device API configured")

type statusMsg struct {
	snap device.Snapshot
	err  error
}

type pollTickMsg struct{}

// actionDoneMsg reports a play, stop or toggle request
type actionDoneMsg struct{ err error }

func (m Model) openMonitor() (tea.Model, tea.Cmd) {
	if m.remote == nil {
		m.state = StateResult
		m.job.err = errNoRemote
		return m, nil
	}
	m.state = StateMonitor
	m.haveSnap = false
	m.pollErr = nil
	return m, m.poll()
}

func (m Model) updateMonitorMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state != StateMonitor {
		return m, nil
	}
	switch msg := msg.(type) {
	case pollTickMsg:
		return m, m.poll()
	case statusMsg:
		m.pollErr = msg.err
		if msg.err == nil {
			m.snapshot, m.haveSnap = msg.snap, true
		}
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollTickMsg{} })
	case actionDoneMsg:
		m.pollErr = msg.err
	}
	return m, nil
}

func (m Model) updateMonitorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = StateMenu
	case " ", "t":
		return m, call(m.remote.Toggle)
	case "p":
		return m, call(m.remote.Play)
	case "s":
		return m, call(m.remote.Stop)
	}
	return m, nil
}

func (m Model) poll() tea.Cmd {
	remote := m.remote
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		snap, err := remote.Status(ctx)
		return statusMsg{snap: snap, err: err}
	}
}

func call(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		return actionDoneMsg{err: fn(ctx)}
	}
}

func (m Model) viewMonitor() string {
	if !m.haveSnap {
		lines := []string{headerStyle.Render("DEVICE"), m.spinner.View() + " Connecting..."}
		if m.pollErr != nil {
			lines = append(lines, "", errStyle.Render(m.pollErr.Error()))
		}
		return panelStyle.Render(strings.Join(lines, "\n"))
	}

	snap := m.snapshot
	lines := []string{headerStyle.Render("DEVICE")}
	row := func(label, value string) {
		lines = append(lines, labelStyle.Render(label)+value)
	}

	state := strings.ToUpper(snap.State.String())
	if snap.State == device.StatePlaying {
		row("State", okStyle.Render(state))
	} else {
		row("State", warnStyle.Render(state))
	}
	row("Melody", fmt.Sprintf("%d / %d notes", snap.Length, snap.Capacity))
	row("Cursor", strconv.Itoa(snap.Cursor))
	if snap.Length > 0 {
		lines = append(lines, m.bar.ViewAs(float64(snap.Cursor)/float64(snap.Length)))
	}
	switch {
	case snap.Frequency == 0:
		row("Output", "silent")
	case snap.Streaming:
		row("Output", fmt.Sprintf("%d Hz (streamed)", snap.Frequency))
	default:
		row("Output", fmt.Sprintf("%d Hz", snap.Frequency))
	}
	row("Peers", strconv.Itoa(snap.Peers))
	if snap.Receiving {
		row("Upload", fmt.Sprintf("%s receiving %d notes", m.spinner.View(), snap.Received))
	}
	if m.pollErr != nil {
		lines = append(lines, "", errStyle.Render(m.pollErr.Error()))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
