package tui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/james-see/tonebridge/pkg/device"
)

type fakeRemote struct {
	snap  device.Snapshot
	calls []string
}

func (f *fakeRemote) Status(context.Context) (device.Snapshot, error) { return f.snap, nil }
func (f *fakeRemote) Play(context.Context) error                      { f.calls = append(f.calls, "play"); return nil }
func (f *fakeRemote) Stop(context.Context) error                      { f.calls = append(f.calls, "stop"); return nil }
func (f *fakeRemote) Toggle(context.Context) error                    { f.calls = append(f.calls, "toggle"); return nil }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m tea.Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestMenuNavigation(t *testing.T) {
	m := New(nil)

	m, _ = send(t, m, key("up"))
	if m.cursor != 0 {
		t.Errorf("cursor after up at top = %d, want 0", m.cursor)
	}
	for i := 0; i < len(actions)+2; i++ {
		m, _ = send(t, m, key("down"))
	}
	if m.cursor != len(actions)-1 {
		t.Errorf("cursor after scrolling = %d, want %d", m.cursor, len(actions)-1)
	}
	m, _ = send(t, m, key("k"))
	if m.cursor != len(actions)-2 {
		t.Errorf("cursor after k = %d, want %d", m.cursor, len(actions)-2)
	}
}

func TestMonitorWithoutRemote(t *testing.T) {
	m := New(nil)
	m, _ = send(t, m, key("enter"))
	if m.state != StateResult || m.job.err == nil {
		t.Errorf("state = %v, err = %v; want result with an error", m.state, m.job.err)
	}
}

func TestMonitorPollsAndRenders(t *testing.T) {
	remote := &fakeRemote{snap: device.Snapshot{
		State: device.StatePlaying, Length: 3, Capacity: 64, Cursor: 1, Frequency: 440, Peers: 2,
	}}
	m := New(remote)

	m, cmd := send(t, m, key("enter"))
	if m.state != StateMonitor {
		t.Fatalf("state = %v, want monitor", m.state)
	}
	if cmd == nil {
		t.Fatal("entering the monitor issued no poll")
	}
	if !strings.Contains(m.View(), "Connecting") {
		t.Error("monitor view before the first poll does not say Connecting")
	}

	m, next := send(t, m, cmd())
	if next == nil {
		t.Error("status message did not schedule the next poll")
	}
	view := m.View()
	for _, want := range []string{"PLAYING", "3 / 64 notes", "440 Hz", "Peers"} {
		if !strings.Contains(view, want) {
			t.Errorf("monitor view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitorKeys(t *testing.T) {
	remote := &fakeRemote{snap: device.Snapshot{State: device.StatePaused, Length: 1}}
	m := New(remote)
	m, _ = send(t, m, key("enter"))

	for _, k := range []string{" ", "p", "s"} {
		var cmd tea.Cmd
		m, cmd = send(t, m, key(k))
		if cmd == nil {
			t.Fatalf("key %q issued no command", k)
		}
		m, _ = send(t, m, cmd())
	}
	want := []string{"toggle", "play", "stop"}
	if strings.Join(remote.calls, ",") != strings.Join(want, ",") {
		t.Errorf("remote calls = %v, want %v", remote.calls, want)
	}

	m, _ = send(t, m, key("esc"))
	if m.state != StateMenu {
		t.Errorf("state after esc = %v, want menu", m.state)
	}
}

func TestHTTPRemote(t *testing.T) {
	var posted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/status":
			_ = json.NewEncoder(w).Encode(device.Snapshot{State: device.StatePlaying, Length: 2})
		case r.Method == http.MethodPost && r.URL.Path != "/api/v1/stop":
			posted = append(posted, r.URL.Path)
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	r := NewHTTPRemote(srv.URL + "/")
	ctx := context.Background()

	snap, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snap.State != device.StatePlaying || snap.Length != 2 {
		t.Errorf("Status() = %+v, want playing with 2 notes", snap)
	}
	if err := r.Play(ctx); err != nil {
		t.Errorf("Play() error = %v", err)
	}
	if err := r.Toggle(ctx); err != nil {
		t.Errorf("Toggle() error = %v", err)
	}
	if err := r.Stop(ctx); err == nil {
		t.Error("Stop() error = nil, want server error")
	}
	if strings.Join(posted, ",") != "/api/v1/play,/api/v1/toggle" {
		t.Errorf("posted = %v", posted)
	}
}

func TestConversionResult(t *testing.T) {
	m := New(nil)
	m.state = StateConverting
	m.job.input = "/tmp/song.mid"

	m, _ = send(t, m, convertedMsg{output: "/tmp/song.bin"})
	if m.state != StateResult {
		t.Fatalf("state = %v, want result", m.state)
	}
	view := m.View()
	for _, want := range []string{"DONE", "song.mid", "song.bin"} {
		if !strings.Contains(view, want) {
			t.Errorf("result view missing %q", want)
		}
	}

	m, _ = send(t, m, key("enter"))
	if m.state != StateMenu {
		t.Errorf("state after enter = %v, want menu", m.state)
	}
}
