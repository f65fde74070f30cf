package device

import (
	"io"

	"github.com/james-see/tonebridge/pkg/protocol"
	"go.uber.org/zap"
)

// Output is the physical tone sink (buzzer, speaker, downstream board)
type Output interface {
	Tone(frequency uint16)
	Silence()
}

type nopOutput struct{}

func (nopOutput) Tone(uint16) {}
func (nopOutput) Silence()    {}

// LogOutput reports tone changes through the logger instead of sounding them
type LogOutput struct {
	Logger *zap.Logger
}

// Tone logs the new frequency
func (o LogOutput) Tone(frequency uint16) {
	o.Logger.Info("tone", zap.Uint16("frequency", frequency))
}

// Silence logs a silence event
func (o LogOutput) Silence() {
	o.Logger.Info("silence")
}

// FrameOutput forwards every tone change as a hold StreamNote frame, e.g. to
// a microcontroller that drives the buzzer itself.
type FrameOutput struct {
	W      io.Writer
	Logger *zap.Logger
}

// Tone writes StreamNote(frequency, 0)
func (o FrameOutput) Tone(frequency uint16) {
	o.write(frequency)
}

// Silence writes StreamNote(0, 0)
func (o FrameOutput) Silence() {
	o.write(0)
}

func (o FrameOutput) write(frequency uint16) {
	if _, err := o.W.Write(protocol.StreamNote(frequency, 0)); err != nil && o.Logger != nil {
		o.Logger.Warn("forward tone failed", zap.Uint16("frequency", frequency), zap.Error(err))
	}
}

// MultiOutput fans tone changes out to several sinks
type MultiOutput []Output

// Tone forwards to every sink
func (m MultiOutput) Tone(frequency uint16) {
	for _, o := range m {
		o.Tone(frequency)
	}
}

// Silence forwards to every sink
func (m MultiOutput) Silence() {
	for _, o := range m {
		o.Silence()
	}
}
