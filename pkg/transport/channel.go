// Package transport moves protocol bytes between the device loop and its peers.
//
// Every channel is polled without blocking; bytes read by background goroutines
// are parked until the loop asks for them.
package transport

import (
	"io"

	"github.com/james-see/tonebridge/pkg/protocol"
)

// Channel is one independent byte link to a peer
type Channel interface {
	// Name identifies the channel in diagnostics only
	Name() string
	// Poll returns whatever bytes arrived since the last call, or nil. It never blocks.
	Poll() []byte
	// Write sends a reply to the peer
	Write(p []byte) (int, error)
	// Connected reports whether a peer is currently attached
	Connected() bool
	Close() error
}

// Handler consumes decoded commands. Channel provenance is informational only.
type Handler interface {
	HandleCommand(channel string, cmd protocol.Command, reply io.Writer)
	HandleUnknown(channel string, tag byte)
}

// PeerPoller is implemented by channels whose peer can be replaced between
// two polls. PollPeer returns the polled bytes with an id of the peer that
// sent them; 0 means no peer.
type PeerPoller interface {
	PollPeer() ([]byte, uint64)
}

// PeerObserver is implemented by handlers that must hear about a peer that
// left without the channel ever reading disconnected. remaining is the
// number of peers still attached elsewhere.
type PeerObserver interface {
	HandlePeerLost(channel string, remaining int)
}
