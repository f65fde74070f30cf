package transport

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	readChunkSize = 256
	pendingChunks = 256
)

// StreamChannel adapts a blocking io.ReadWriteCloser to the non-blocking
// Channel contract: a reader goroutine parks chunks until Poll collects them.
type StreamChannel struct {
	name string
	rwc  io.ReadWriteCloser
	log  *zap.Logger

	data      chan []byte
	done      chan struct{}
	connected atomic.Bool
	closeOnce sync.Once
}

// NewStreamChannel starts reading from rwc immediately
func NewStreamChannel(name string, rwc io.ReadWriteCloser, log *zap.Logger) *StreamChannel {
	if log == nil {
		log = zap.NewNop()
	}
	c := &StreamChannel{
		name: name,
		rwc:  rwc,
		log:  log,
		data: make(chan []byte, pendingChunks),
		done: make(chan struct{}),
	}
	c.connected.Store(true)
	go c.readLoop()
	return c
}

func (c *StreamChannel) readLoop() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.data <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				if errors.Is(err, io.EOF) {
					c.log.Info("peer closed channel", zap.String("channel", c.name))
				} else {
					c.log.Warn("channel read failed", zap.String("channel", c.name), zap.Error(err))
				}
			}
			c.connected.Store(false)
			return
		}
	}
}

// Name returns the channel name
func (c *StreamChannel) Name() string { return c.name }

// Poll drains every chunk parked so far
func (c *StreamChannel) Poll() []byte {
	var out []byte
	for {
		select {
		case b := <-c.data:
			out = append(out, b...)
		default:
			return out
		}
	}
}

// Write sends bytes to the peer
func (c *StreamChannel) Write(p []byte) (int, error) {
	return c.rwc.Write(p)
}

// Connected reports whether the reader is still alive
func (c *StreamChannel) Connected() bool { return c.connected.Load() }

// Close stops the reader and closes the underlying stream
func (c *StreamChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.connected.Store(false)
		err = c.rwc.Close()
	})
	return err
}
