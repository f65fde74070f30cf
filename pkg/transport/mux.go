package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/james-see/tonebridge/pkg/protocol"
	"go.uber.org/zap"
)

// Maintainer is implemented by channels that need periodic upkeep, such as
// reopening a lost device
type Maintainer interface {
	Maintain(now time.Time)
}

type muxEntry struct {
	ch        Channel
	dec       *protocol.Decoder
	connected bool
	peer      uint64
}

// Mux polls every registered channel, reassembles frames per channel and
// hands complete commands to a Handler in arrival order. Channels never share
// a decoder, so bytes from two peers cannot interleave into one frame.
type Mux struct {
	log *zap.Logger

	mu      sync.Mutex
	entries []*muxEntry
	now     func() time.Time
}

// NewMux returns a multiplexer over channels
func NewMux(log *zap.Logger, channels ...Channel) *Mux {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mux{log: log, now: time.Now}
	for _, ch := range channels {
		m.Add(ch)
	}
	return m
}

// Add registers another channel
func (m *Mux) Add(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &muxEntry{ch: ch, dec: protocol.NewDecoder(), connected: ch.Connected()})
}

// Channels returns the registered channel names
func (m *Mux) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.ch.Name()
	}
	return names
}

// Poll performs one non-blocking pass over all channels
func (m *Mux) Poll(h Handler) {
	m.mu.Lock()
	entries := append([]*muxEntry(nil), m.entries...)
	m.mu.Unlock()

	now := m.now()
	for _, e := range entries {
		if mt, ok := e.ch.(Maintainer); ok {
			mt.Maintain(now)
		}
		if b := m.poll(e, entries, h); len(b) > 0 {
			e.dec.Feed(b)
		}
		m.dispatch(e, h)
		m.trackPeer(e)
	}
}

// poll reads e and, when the channel reports a different peer than last
// time while it never read disconnected, treats the old peer as gone before
// the new peer's bytes are decoded
func (m *Mux) poll(e *muxEntry, entries []*muxEntry, h Handler) []byte {
	pp, ok := e.ch.(PeerPoller)
	if !ok {
		return e.ch.Poll()
	}
	b, peer := pp.PollPeer()
	if peer == 0 {
		return b
	}
	if e.connected && e.peer != 0 && peer != e.peer {
		if n := e.dec.Buffered(); n > 0 {
			m.log.Debug("dropping partial frame", zap.String("channel", e.ch.Name()), zap.Int("bytes", n))
		}
		e.dec.Reset()
		m.log.Info("peer replaced", zap.String("channel", e.ch.Name()))
		if obs, ok := h.(PeerObserver); ok {
			remaining := 0
			for _, o := range entries {
				if o != e && o.ch.Connected() {
					remaining++
				}
			}
			obs.HandlePeerLost(e.ch.Name(), remaining)
		}
	}
	e.peer = peer
	return b
}

func (m *Mux) dispatch(e *muxEntry, h Handler) {
	name := e.ch.Name()
	for {
		cmd, err := e.dec.Next()
		if errors.Is(err, protocol.ErrIncomplete) {
			return
		}
		var unknown *protocol.UnknownTagError
		if errors.As(err, &unknown) {
			h.HandleUnknown(name, unknown.Tag)
			continue
		}
		h.HandleCommand(name, cmd, e.ch)
	}
}

func (m *Mux) trackPeer(e *muxEntry) {
	connected := e.ch.Connected()
	if connected == e.connected {
		return
	}
	e.connected = connected
	if connected {
		m.log.Info("peer connected", zap.String("channel", e.ch.Name()))
		return
	}
	if n := e.dec.Buffered(); n > 0 {
		m.log.Debug("dropping partial frame", zap.String("channel", e.ch.Name()), zap.Int("bytes", n))
	}
	e.dec.Reset()
	m.log.Info("peer disconnected", zap.String("channel", e.ch.Name()))
}

// Peers counts channels with an attached peer
func (m *Mux) Peers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.ch.Connected() {
			n++
		}
	}
	return n
}

// Close closes every channel
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, e := range m.entries {
		if err := e.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
