package converter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/pulse"
	"go.uber.org/zap"
)

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mid", ".midi":
		return FormatMIDI
	case ".bin", ".mel":
		return FormatMelody
	case ".h":
		return FormatHeader
	case ".wav":
		return FormatWAV
	case ".pcm", ".raw", ".s8":
		return FormatPCM
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	// Check for MIDI file signature "MThd"
	if string(data[:4]) == "MThd" {
		return FormatMIDI
	}

	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}

	if bytes.HasPrefix(data, []byte("int melody[]")) {
		return FormatHeader
	}

	// Whole records are assumed to be a melody; anything else is raw PCM
	if len(data)%melody.RecordSize == 0 {
		return FormatMelody
	}
	return FormatPCM
}

// Decode reads notes from data in the given format
func (c *Converter) Decode(data []byte, format Format) ([]melody.Note, error) {
	switch format {
	case FormatMelody:
		return melody.Unmarshal(data)
	case FormatMIDI:
		return c.midi.ParseMIDI(data)
	case FormatPCM:
		return pulse.NewDecoder(c.pulse, c.log).Decode(pulse.Samples(data))
	default:
		return nil, fmt.Errorf("%w: cannot read %s", ErrUnsupported, format)
	}
}

// Encode renders notes in the given format
func (c *Converter) Encode(notes []melody.Note, format Format) ([]byte, error) {
	switch format {
	case FormatMelody:
		return melody.Marshal(notes), nil
	case FormatMIDI:
		return c.midi.GenerateMIDI(notes)
	case FormatHeader:
		return []byte(melody.CArrays(notes)), nil
	case FormatWAV:
		return Preview(notes, c.preview)
	default:
		return nil, fmt.Errorf("%w: cannot write %s", ErrUnsupported, format)
	}
}

// LoadFile reads notes from a file, detecting its format from the
// extension and falling back to its content
func (c *Converter) LoadFile(path string) ([]melody.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	format := DetectFormat(path)
	if format == FormatUnknown {
		format = DetectFormatFromContent(data)
	}
	notes, err := c.Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", path, format, err)
	}
	c.log.Debug("loaded melody", zap.String("path", path), zap.String("format", string(format)), zap.Int("notes", len(notes)))
	return notes, nil
}

// ConvertFile converts a file from one format to another
func (c *Converter) ConvertFile(inputPath, outputPath string) error {
	outputFormat := DetectFormat(outputPath)
	if outputFormat == FormatUnknown {
		return fmt.Errorf("%w: cannot determine output format from %q", ErrUnsupported, outputPath)
	}

	notes, err := c.LoadFile(inputPath)
	if err != nil {
		return err
	}

	outputData, err := c.Encode(notes, outputFormat)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	c.log.Info("converted",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("notes", len(notes)),
		zap.Int("duration_ms", melody.TotalDuration(notes)))
	return nil
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"midi -> melody",
		"midi -> header",
		"midi -> wav",
		"melody -> midi",
		"melody -> header",
		"melody -> wav",
		"pcm -> melody",
		"pcm -> midi",
		"pcm -> header",
		"pcm -> wav",
	}
}
