package converter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/james-see/tonebridge/pkg/melody"
)

const wavHeaderSize = 44

// Preview renders notes as a 16-bit mono square-wave WAV, approximating what
// the device's tone output sounds like
func Preview(notes []melody.Note, opts PreviewOptions) ([]byte, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", opts.SampleRate)
	}
	if opts.Amplitude < 0 || opts.Amplitude > 1 {
		return nil, fmt.Errorf("amplitude %.2f out of range 0..1", opts.Amplitude)
	}

	var pcm []int16
	high := int16(32767 * opts.Amplitude)
	for _, n := range notes {
		count := opts.SampleRate * int(n.Duration) / 1000
		if n.IsRest() {
			pcm = append(pcm, make([]int16, count)...)
			continue
		}
		period := float64(opts.SampleRate) / float64(n.Frequency)
		for i := 0; i < count; i++ {
			if math.Mod(float64(i), period) < period/2 {
				pcm = append(pcm, high)
			} else {
				pcm = append(pcm, -high)
			}
		}
	}

	dataSize := uint32(len(pcm) * 2)
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + int(dataSize))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, struct {
		Size          uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}{16, 1, 1, uint32(opts.SampleRate), uint32(opts.SampleRate) * 2, 2, 16})
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, pcm)
	return buf.Bytes(), nil
}
