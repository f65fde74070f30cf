// Package converter provides conversion between melody files and MIDI, C headers, WAV previews and PCM captures
package converter

import (
	"errors"

	"github.com/james-see/tonebridge/pkg/pulse"
	"go.uber.org/zap"
)

// Format represents a file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatMelody  Format = "melody"
	FormatHeader  Format = "header"
	FormatWAV     Format = "wav"
	FormatPCM     Format = "pcm"
	FormatUnknown Format = "unknown"
)

// ErrUnsupported is returned for conversions with no path between the formats
var ErrUnsupported = errors.New("converter: unsupported conversion")

// PreviewOptions control the square-wave WAV preview
type PreviewOptions struct {
	SampleRate int
	// Amplitude is the peak level from 0 to 1
	Amplitude float64
}

// Converter handles format conversions
type Converter struct {
	midi    *MIDIConverter
	preview PreviewOptions
	pulse   pulse.Options
	log     *zap.Logger
}

// Option configures a Converter
type Option func(*Converter)

// WithLogger sets the converter logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) { c.log = l }
}

// WithPreview sets the WAV preview options
func WithPreview(p PreviewOptions) Option {
	return func(c *Converter) { c.preview = p }
}

// WithPulse sets the PCM decoder options
func WithPulse(p pulse.Options) Option {
	return func(c *Converter) { c.pulse = p }
}

// New creates a new Converter
func New(opts ...Option) *Converter {
	c := &Converter{
		midi:    NewMIDIConverter(),
		preview: PreviewOptions{SampleRate: 44100, Amplitude: 0.3},
		pulse:   pulse.DefaultOptions(),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}
