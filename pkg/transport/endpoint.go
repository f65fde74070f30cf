package transport

import (
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Kind selects the link technology of an endpoint
type Kind string

// Supported endpoint kinds
const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
	KindPipe   Kind = "pipe"
)

// Endpoint describes one link. On the device side it is opened as a Channel;
// on the host side it is dialed as a plain stream.
type Endpoint struct {
	Name      string `yaml:"name" toml:"name" json:"name"`
	Kind      Kind   `yaml:"kind" toml:"kind" json:"kind"`
	Address   string `yaml:"address" toml:"address" json:"address"`
	Baud      int    `yaml:"baud,omitempty" toml:"baud,omitempty" json:"baud,omitempty"`
	ReplyPath string `yaml:"reply_path,omitempty" toml:"reply_path,omitempty" json:"reply_path,omitempty"`
}

// Validate checks that the endpoint can be opened
func (e Endpoint) Validate() error {
	if e.Address == "" {
		return fmt.Errorf("endpoint %q: address is required", e.Name)
	}
	switch e.Kind {
	case KindSerial, KindTCP, KindPipe:
		return nil
	default:
		return fmt.Errorf("endpoint %q: unsupported kind %q", e.Name, e.Kind)
	}
}

// Open opens the device side of an endpoint
func Open(e Endpoint, log *zap.Logger) (Channel, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	name := e.Name
	if name == "" {
		name = string(e.Kind)
	}
	switch e.Kind {
	case KindSerial:
		return NewSerialChannel(name, e.Address, e.Baud, log), nil
	case KindTCP:
		return ListenTCP(name, e.Address, log)
	default:
		return OpenPipe(name, e.Address, e.ReplyPath, log)
	}
}

// Dial opens the host side of an endpoint
func Dial(e Endpoint, timeout time.Duration) (io.ReadWriteCloser, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	switch e.Kind {
	case KindSerial:
		baud := e.Baud
		if baud <= 0 {
			baud = DefaultBaud
		}
		port, err := serial.Open(e.Address, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", e.Address, err)
		}
		if err := port.SetReadTimeout(serialReadTimeout); err != nil {
			_ = port.Close()
			return nil, err
		}
		return port, nil
	case KindTCP:
		return net.DialTimeout("tcp", e.Address, timeout)
	default:
		return dialPipe(e.Address, e.ReplyPath)
	}
}
