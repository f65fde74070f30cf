package transport

import (
	"errors"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// TCPChannel accepts one peer at a time on a TCP listener. A second peer
// that connects while the first is attached is turned away.
type TCPChannel struct {
	name string
	ln   net.Listener
	log  *zap.Logger

	cur   atomic.Pointer[tcpPeer]
	peers atomic.Uint64
}

// tcpPeer is one accepted connection; id grows with every attach
type tcpPeer struct {
	*StreamChannel
	id uint64
}

// ListenTCP starts listening on addr and accepting peers in the background
func ListenTCP(name, addr string, log *zap.Logger) (*TCPChannel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &TCPChannel{name: name, ln: ln, log: log}
	go c.acceptLoop()
	log.Info("tcp: listening", zap.String("channel", name), zap.String("addr", ln.Addr().String()))
	return c, nil
}

// Addr returns the bound listener address
func (c *TCPChannel) Addr() net.Addr { return c.ln.Addr() }

func (c *TCPChannel) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.log.Warn("tcp: accept failed", zap.String("channel", c.name), zap.Error(err))
			}
			return
		}
		if cur := c.cur.Load(); cur != nil && cur.Connected() {
			c.log.Warn("tcp: peer rejected, channel busy",
				zap.String("channel", c.name),
				zap.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}
		c.log.Info("tcp: peer attached", zap.String("channel", c.name), zap.String("remote", conn.RemoteAddr().String()))
		next := &tcpPeer{StreamChannel: NewStreamChannel(c.name, conn, c.log), id: c.peers.Add(1)}
		if old := c.cur.Swap(next); old != nil {
			_ = old.Close()
		}
	}
}

// Name returns the channel name
func (c *TCPChannel) Name() string { return c.name }

// Poll returns bytes from the attached peer. Bytes already received from a
// peer that has since gone are still delivered once.
func (c *TCPChannel) Poll() []byte {
	b, _ := c.PollPeer()
	return b
}

// PollPeer is Poll plus the id of the peer the bytes came from. A peer that
// drops and is replaced between two polls shows up as a new id even though
// Connected never reported false. The id is 0 when no peer is attached.
func (c *TCPChannel) PollPeer() ([]byte, uint64) {
	cur := c.cur.Load()
	if cur == nil {
		return nil, 0
	}
	alive := cur.Connected()
	b := cur.Poll()
	if !alive && c.cur.CompareAndSwap(cur, nil) {
		_ = cur.Close()
	}
	return b, cur.id
}

// Write sends bytes to the attached peer
func (c *TCPChannel) Write(p []byte) (int, error) {
	cur := c.cur.Load()
	if cur == nil {
		return 0, ErrNotConnected
	}
	return cur.Write(p)
}

// Connected reports whether a peer is attached
func (c *TCPChannel) Connected() bool {
	cur := c.cur.Load()
	return cur != nil && cur.Connected()
}

// Close stops listening and drops the current peer
func (c *TCPChannel) Close() error {
	err := c.ln.Close()
	if cur := c.cur.Swap(nil); cur != nil {
		err = errors.Join(err, cur.Close())
	}
	return err
}
