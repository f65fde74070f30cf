package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Serial defaults
const (
	DefaultBaud          = 115200
	serialReadTimeout    = 50 * time.Millisecond
	serialRescanInterval = time.Second
)

// ErrNotConnected is returned when writing to a channel without a peer
var ErrNotConnected = errors.New("transport: no peer connected")

// serialPort is the subset of serial.Port the channel uses
type serialPort interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

type portOpener func(name string, mode *serial.Mode) (serialPort, error)

func openSerialPort(name string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(name, mode)
}

// SerialChannel is a wired link over a serial device. When the device
// disappears it is reopened on a rescan interval.
type SerialChannel struct {
	name   string
	device string
	baud   int
	log    *zap.Logger
	open   portOpener

	cur         *StreamChannel
	lastAttempt time.Time
}

// NewSerialChannel opens the serial device. A failed first open is not fatal:
// the channel keeps retrying from Maintain.
func NewSerialChannel(name, device string, baud int, log *zap.Logger) *SerialChannel {
	return newSerialChannel(name, device, baud, log, openSerialPort)
}

func newSerialChannel(name, device string, baud int, log *zap.Logger, open portOpener) *SerialChannel {
	if log == nil {
		log = zap.NewNop()
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	c := &SerialChannel{name: name, device: device, baud: baud, log: log, open: open}
	c.Maintain(time.Now())
	return c
}

// Maintain reopens the port if it was lost and the rescan interval has elapsed
func (c *SerialChannel) Maintain(now time.Time) {
	if c.cur != nil {
		if c.cur.Connected() {
			return
		}
		c.log.Warn("serial: device lost", zap.String("channel", c.name), zap.String("device", c.device))
		_ = c.cur.Close()
		c.cur = nil
	}
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < serialRescanInterval {
		return
	}
	c.lastAttempt = now

	if err := c.connect(); err != nil {
		c.log.Debug("serial: open failed", zap.String("channel", c.name), zap.String("device", c.device), zap.Error(err))
	}
}

func (c *SerialChannel) connect() error {
	port, err := c.open(c.device, &serial.Mode{BaudRate: c.baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", c.device, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set read timeout on %s: %w", c.device, err)
	}
	_ = port.ResetInputBuffer()

	c.cur = NewStreamChannel(c.name, port, c.log)
	c.log.Info("serial: port opened", zap.String("channel", c.name), zap.String("device", c.device), zap.Int("baud", c.baud))
	return nil
}

// Name returns the channel name
func (c *SerialChannel) Name() string { return c.name }

// Poll returns bytes received since the last poll
func (c *SerialChannel) Poll() []byte {
	if c.cur == nil {
		return nil
	}
	return c.cur.Poll()
}

// Write sends bytes to the attached device
func (c *SerialChannel) Write(p []byte) (int, error) {
	if c.cur == nil {
		return 0, ErrNotConnected
	}
	return c.cur.Write(p)
}

// Connected reports whether the port is open and readable
func (c *SerialChannel) Connected() bool {
	return c.cur != nil && c.cur.Connected()
}

// Close closes the port
func (c *SerialChannel) Close() error {
	if c.cur == nil {
		return nil
	}
	c.log.Info("serial: closing port", zap.String("channel", c.name))
	err := c.cur.Close()
	c.cur = nil
	return err
}
