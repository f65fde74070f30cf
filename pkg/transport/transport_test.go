package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/james-see/tonebridge/pkg/protocol"
	"go.bug.st/serial"
	"go.uber.org/zap/zaptest"
)

type received struct {
	channel string
	cmd     protocol.Command
	unknown byte
}

type recordingHandler struct {
	got   []received
	reply []byte
}

func (h *recordingHandler) HandleCommand(channel string, cmd protocol.Command, reply io.Writer) {
	h.got = append(h.got, received{channel: channel, cmd: cmd})
	if h.reply != nil {
		_, _ = reply.Write(h.reply)
	}
}

func (h *recordingHandler) HandleUnknown(channel string, tag byte) {
	h.got = append(h.got, received{channel: channel, unknown: tag})
}

func TestMuxReassemblesAcrossPolls(t *testing.T) {
	ch := NewBufferChannel("usb", true)
	m := NewMux(zaptest.NewLogger(t), ch)
	h := &recordingHandler{}

	frame := protocol.StreamNote(440, 250)
	ch.Push(frame[:2])
	m.Poll(h)
	if len(h.got) != 0 {
		t.Fatalf("Poll() dispatched %d commands from a partial frame", len(h.got))
	}

	ch.Push(frame[2:])
	m.Poll(h)
	if len(h.got) != 1 {
		t.Fatalf("Poll() dispatched %d commands, want 1", len(h.got))
	}
	want := protocol.Command{Tag: protocol.TagStreamNote, Frequency: 440, Duration: 250}
	if h.got[0].cmd != want || h.got[0].channel != "usb" {
		t.Errorf("got %+v on %q, want %+v on usb", h.got[0].cmd, h.got[0].channel, want)
	}
}

func TestMuxKeepsChannelsApart(t *testing.T) {
	a := NewBufferChannel("a", true)
	b := NewBufferChannel("b", true)
	m := NewMux(nil, a, b)
	h := &recordingHandler{}

	fa := protocol.StreamNote(440, 0)
	fb := protocol.StreamNote(523, 0)
	a.Push(fa[:3])
	b.Push(fb[:1])
	m.Poll(h)
	a.Push(fa[3:])
	b.Push(fb[1:])
	m.Poll(h)

	if len(h.got) != 2 {
		t.Fatalf("got %d commands, want 2", len(h.got))
	}
	if h.got[0].channel != "a" || h.got[0].cmd.Frequency != 440 {
		t.Errorf("first = %+v, want 440 on a", h.got[0])
	}
	if h.got[1].channel != "b" || h.got[1].cmd.Frequency != 523 {
		t.Errorf("second = %+v, want 523 on b", h.got[1])
	}
}

func TestMuxReportsUnknownTagAndResyncs(t *testing.T) {
	ch := NewBufferChannel("ble", true)
	m := NewMux(nil, ch)
	h := &recordingHandler{}

	ch.Push([]byte{0xFF, byte(protocol.TagPlay)})
	m.Poll(h)

	if len(h.got) != 2 {
		t.Fatalf("got %d events, want 2", len(h.got))
	}
	if h.got[0].unknown != 0xFF || h.got[0].channel != "ble" {
		t.Errorf("first event = %+v, want unknown 0xFF on ble", h.got[0])
	}
	if h.got[1].cmd.Tag != protocol.TagPlay {
		t.Errorf("second event tag = %v, want %v", h.got[1].cmd.Tag, protocol.TagPlay)
	}
}

func TestMuxRepliesOnSourceChannel(t *testing.T) {
	a := NewBufferChannel("a", true)
	b := NewBufferChannel("b", true)
	m := NewMux(nil, a, b)
	h := &recordingHandler{reply: []byte{0x01, 0x02}}

	b.Push(protocol.StatusRequest())
	m.Poll(h)

	if got := a.Drain(); len(got) != 0 {
		t.Errorf("channel a got reply %v, want none", got)
	}
	if got := b.Drain(); string(got) != "\x01\x02" {
		t.Errorf("channel b reply = %v, want [1 2]", got)
	}
}

func TestMuxDropsPartialFrameOnDisconnect(t *testing.T) {
	ch := NewBufferChannel("usb", true)
	m := NewMux(nil, ch)
	h := &recordingHandler{}

	ch.Push(protocol.StreamNote(440, 0)[:3])
	m.Poll(h)
	ch.SetConnected(false)
	m.Poll(h)
	ch.SetConnected(true)
	ch.Push(protocol.Play())
	m.Poll(h)

	if len(h.got) != 1 || h.got[0].cmd.Tag != protocol.TagPlay {
		t.Errorf("got %+v, want a single Play", h.got)
	}
}

// handoverChannel is a buffer channel whose peer id can change while it
// keeps reporting connected
type handoverChannel struct {
	*BufferChannel
	peer uint64
}

func (c *handoverChannel) PollPeer() ([]byte, uint64) { return c.Poll(), c.peer }

type observingHandler struct {
	recordingHandler
	lost []int
}

func (h *observingHandler) HandlePeerLost(channel string, remaining int) {
	h.lost = append(h.lost, remaining)
}

func TestMuxResetsOnPeerHandover(t *testing.T) {
	link := &handoverChannel{BufferChannel: NewBufferChannel("wifi", true), peer: 1}
	other := NewBufferChannel("usb", true)
	m := NewMux(nil, link, other)
	h := &observingHandler{}

	link.Push(protocol.StreamNote(440, 0)[:3])
	m.Poll(h)
	link.peer = 2
	link.Push(protocol.Play())
	m.Poll(h)
	m.Poll(h)

	if len(h.got) != 1 || h.got[0].cmd.Tag != protocol.TagPlay {
		t.Errorf("got %+v, want a single Play from the new peer", h.got)
	}
	if len(h.lost) != 1 || h.lost[0] != 1 {
		t.Errorf("peer lost reports = %v, want one with 1 remaining", h.lost)
	}
}

func TestMuxFirstPeerIsNotAHandover(t *testing.T) {
	link := &handoverChannel{BufferChannel: NewBufferChannel("wifi", false)}
	m := NewMux(nil, link)
	h := &observingHandler{}

	m.Poll(h)
	link.SetConnected(true)
	link.peer = 1
	link.Push(protocol.Play())
	m.Poll(h)
	link.SetConnected(false)
	m.Poll(h)
	link.SetConnected(true)
	link.peer = 2
	m.Poll(h)

	if len(h.lost) != 0 {
		t.Errorf("peer lost reports = %v, want none when every change was visible", h.lost)
	}
}

func TestMuxPeers(t *testing.T) {
	a := NewBufferChannel("a", true)
	b := NewBufferChannel("b", false)
	m := NewMux(nil, a, b)

	if got := m.Peers(); got != 1 {
		t.Errorf("Peers() = %d, want 1", got)
	}
	b.SetConnected(true)
	if got := m.Peers(); got != 2 {
		t.Errorf("Peers() = %d, want 2", got)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := m.Peers(); got != 0 {
		t.Errorf("Peers() after Close = %d, want 0", got)
	}
}

// pollUntil polls ch until it has collected want bytes or the deadline passes
func pollUntil(t *testing.T, ch Channel, want int) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		got = append(got, ch.Poll()...)
		time.Sleep(time.Millisecond)
	}
	return got
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamChannel(t *testing.T) {
	local, remote := net.Pipe()
	ch := NewStreamChannel("pipe", local, zaptest.NewLogger(t))
	defer ch.Close()

	go func() { _, _ = remote.Write([]byte{0x03, 0x04}) }()
	if got := pollUntil(t, ch, 2); string(got) != "\x03\x04" {
		t.Fatalf("Poll() = %v, want [3 4]", got)
	}

	go func() { _, _ = ch.Write([]byte{0x05}) }()
	buf := make([]byte, 1)
	if _, err := io.ReadFull(remote, buf); err != nil || buf[0] != 0x05 {
		t.Fatalf("peer read = %v, %v; want [5]", buf, err)
	}

	_ = remote.Close()
	waitFor(t, "disconnect", func() bool { return !ch.Connected() })
}

func TestTCPChannelServesOnePeer(t *testing.T) {
	ch, err := ListenTCP("wifi", "127.0.0.1:0", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("ListenTCP() error = %v", err)
	}
	defer ch.Close()

	first, err := net.Dial("tcp", ch.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer first.Close()
	waitFor(t, "first peer", ch.Connected)

	second, err := net.Dial("tcp", ch.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer second.Close()
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := second.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("second peer read error = %v, want EOF", err)
	}

	if _, err := first.Write(protocol.Play()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := pollUntil(t, ch, 1); len(got) != 1 || got[0] != byte(protocol.TagPlay) {
		t.Errorf("Poll() = %v, want [3]", got)
	}

	_ = first.Close()
	waitFor(t, "peer loss", func() bool {
		ch.Poll()
		return !ch.Connected()
	})
	if _, err := ch.Write([]byte{0}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() without peer error = %v, want ErrNotConnected", err)
	}
}

func TestTCPChannelNumbersPeers(t *testing.T) {
	ch, err := ListenTCP("wifi", "127.0.0.1:0", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("ListenTCP() error = %v", err)
	}
	defer ch.Close()

	first, err := net.Dial("tcp", ch.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	waitFor(t, "first peer", ch.Connected)
	if _, id := ch.PollPeer(); id != 1 {
		t.Errorf("first peer id = %d, want 1", id)
	}

	// replace the peer without polling in between
	_ = first.Close()
	waitFor(t, "first peer gone", func() bool { return !ch.Connected() })
	second, err := net.Dial("tcp", ch.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer second.Close()
	waitFor(t, "second peer", ch.Connected)
	if _, id := ch.PollPeer(); id != 2 {
		t.Errorf("second peer id = %d, want 2", id)
	}
}

type fakePort struct {
	io.Reader
	io.Writer
	closeOnce sync.Once
	closer    io.Closer
}

func (p *fakePort) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.closer.Close() })
	return err
}
func (p *fakePort) ResetInputBuffer() error              { return nil }
func (p *fakePort) SetReadTimeout(t time.Duration) error { return nil }

func TestSerialChannelReopens(t *testing.T) {
	var (
		attempts int
		peer     *io.PipeWriter
	)
	open := func(name string, mode *serial.Mode) (serialPort, error) {
		attempts++
		if mode.BaudRate != 9600 {
			t.Errorf("BaudRate = %d, want 9600", mode.BaudRate)
		}
		if attempts == 1 {
			return nil, errors.New("no such device")
		}
		r, w := io.Pipe()
		peer = w
		return &fakePort{Reader: r, Writer: io.Discard, closer: r}, nil
	}

	ch := newSerialChannel("usb", "/dev/ttyUSB0", 9600, zaptest.NewLogger(t), open)
	defer ch.Close()
	if ch.Connected() {
		t.Fatal("Connected() = true after failed open")
	}

	start := ch.lastAttempt
	ch.Maintain(start.Add(serialRescanInterval / 2))
	if attempts != 1 {
		t.Fatalf("attempts = %d before rescan interval, want 1", attempts)
	}
	ch.Maintain(start.Add(serialRescanInterval))
	if attempts != 2 || !ch.Connected() {
		t.Fatalf("attempts = %d, connected = %v; want reopened", attempts, ch.Connected())
	}

	go func() { _, _ = peer.Write([]byte{0x04}) }()
	if got := pollUntil(t, ch, 1); len(got) != 1 || got[0] != 0x04 {
		t.Errorf("Poll() = %v, want [4]", got)
	}
}

func TestEndpointValidate(t *testing.T) {
	tests := []struct {
		name    string
		ep      Endpoint
		wantErr bool
	}{
		{"serial", Endpoint{Kind: KindSerial, Address: "/dev/ttyACM0"}, false},
		{"tcp", Endpoint{Kind: KindTCP, Address: ":7000"}, false},
		{"pipe", Endpoint{Kind: KindPipe, Address: "/tmp/tone.in"}, false},
		{"missing address", Endpoint{Kind: KindTCP}, true},
		{"bad kind", Endpoint{Kind: "ble", Address: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
