package transport

import (
	"bytes"
	"sync"
)

// BufferChannel is an in-memory channel. Bytes pushed from any goroutine are
// delivered on the next Poll; replies accumulate until Drain.
type BufferChannel struct {
	name string

	mu        sync.Mutex
	in        []byte
	out       bytes.Buffer
	connected bool
}

// NewBufferChannel returns an in-memory channel; connected reports whether it counts as a peer
func NewBufferChannel(name string, connected bool) *BufferChannel {
	return &BufferChannel{name: name, connected: connected}
}

// Push queues bytes as if a peer had sent them
func (c *BufferChannel) Push(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, p...)
}

// Name returns the channel name
func (c *BufferChannel) Name() string { return c.name }

// Poll returns and clears pushed bytes
func (c *BufferChannel) Poll() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return nil
	}
	out := c.in
	c.in = nil
	return out
}

// Write records a reply
func (c *BufferChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Drain returns and clears the recorded replies
func (c *BufferChannel) Drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := bytes.Clone(c.out.Bytes())
	c.out.Reset()
	return out
}

// SetConnected changes whether the channel counts as an attached peer
func (c *BufferChannel) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

// Connected reports the configured peer state
func (c *BufferChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close disconnects the channel
func (c *BufferChannel) Close() error {
	c.SetConnected(false)
	return nil
}
