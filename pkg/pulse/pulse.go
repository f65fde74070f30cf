// Package pulse recovers a melody from a PC-speaker style square-wave
// capture (raw signed 8-bit mono PCM).
package pulse

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/james-see/tonebridge/pkg/melody"
	"go.uber.org/zap"
)

// Method selects how samples are turned into a two-level signal
type Method string

const (
	// MethodEdge finds slopes in a sliding window; suited to re-recorded captures
	MethodEdge Method = "edge"
	// MethodThreshold compares each sample to an absolute level
	MethodThreshold Method = "threshold"
)

// Options tune the decoder
type Options struct {
	SampleRate int
	// Speed scales the time base, e.g. 0.8 for a board clocked faster than the capture assumed
	Speed    float64
	BaseFreq float64
	Method   Method
	// Threshold is the absolute level for MethodThreshold and the minimum
	// window swing for MethodEdge
	Threshold  int
	WindowSize int
	// MinCycles is the run length at or below which a note is treated as silence
	MinCycles int
	Merge     bool
	// Smooth drops notes no longer than this many ms that sit between two equal notes
	Smooth int
}

// DefaultOptions returns settings for a 44.1 kHz capture
func DefaultOptions() Options {
	return Options{
		SampleRate: 44100,
		Speed:      1.0,
		BaseFreq:   55.0,
		Method:     MethodEdge,
		Threshold:  30,
		WindowSize: 5,
		MinCycles:  1,
		Merge:      true,
	}
}

// Decoder turns PCM captures into notes
type Decoder struct {
	opts Options
	log  *zap.Logger
}

// NewDecoder returns a decoder; zero-valued options fall back to defaults
func NewDecoder(opts Options, log *zap.Logger) *Decoder {
	def := DefaultOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Speed <= 0 {
		opts.Speed = def.Speed
	}
	if opts.BaseFreq <= 0 {
		opts.BaseFreq = def.BaseFreq
	}
	if opts.Method == "" {
		opts.Method = def.Method
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = def.WindowSize
	}
	if opts.Threshold == 0 {
		opts.Threshold = def.Threshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{opts: opts, log: log}
}

// DecodeFile decodes a raw PCM file
func (d *Decoder) DecodeFile(path string) ([]melody.Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return d.DecodeReader(f)
}

// DecodeReader decodes raw signed 8-bit PCM from r
func (d *Decoder) DecodeReader(r io.Reader) ([]melody.Note, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	return d.Decode(Samples(data))
}

// Samples reinterprets raw bytes as signed 8-bit samples
func Samples(data []byte) []int8 {
	out := make([]int8, len(data))
	for i, b := range data {
		out[i] = int8(b)
	}
	return out
}

// Decode runs the full pipeline over samples
func (d *Decoder) Decode(samples []int8) ([]melody.Note, error) {
	o := d.opts
	d.log.Debug("decoding pcm",
		zap.Int("samples", len(samples)),
		zap.Float64("seconds", float64(len(samples))/float64(o.SampleRate)),
		zap.String("method", string(o.Method)))

	var levels []bool
	switch o.Method {
	case MethodThreshold:
		levels = BinarizeThreshold(samples, o.Threshold)
	case MethodEdge:
		levels = BinarizeEdges(samples, o.WindowSize, o.Threshold)
	default:
		return nil, fmt.Errorf("unknown binarization method %q", o.Method)
	}

	edges := RisingEdges(levels)
	cycles := d.cycles(edges)
	notes := d.group(cycles)
	d.log.Debug("grouped notes", zap.Int("edges", len(edges)), zap.Int("cycles", len(cycles)), zap.Int("notes", len(notes)))

	if o.Merge {
		notes = Merge(notes)
	}
	if o.Smooth > 0 {
		notes = Smooth(notes, o.Smooth)
		if o.Merge {
			notes = Merge(notes)
		}
	}
	notes = TrimSilence(notes)
	d.log.Debug("decoded melody", zap.Int("notes", len(notes)), zap.Int("total_ms", melody.TotalDuration(notes)))
	return notes, nil
}

// BinarizeThreshold maps samples at or above threshold to high
func BinarizeThreshold(samples []int8, threshold int) []bool {
	out := make([]bool, len(samples))
	for i, s := range samples {
		out[i] = int(s) >= threshold
	}
	return out
}

// BinarizeEdges tracks the square wave by its slopes. A window whose swing
// reaches minDelta holds an edge: rising when the minimum comes first. The
// edge is placed on the steepest sample between the extremes and the next
// window starts past it so one transition is never counted twice.
func BinarizeEdges(samples []int8, window, minDelta int) []bool {
	out := make([]bool, len(samples))
	if len(samples) < window {
		return out
	}

	state := false
	i := 0
	for i <= len(samples)-window {
		minIdx, maxIdx := i, i
		for j := i + 1; j < i+window; j++ {
			if samples[j] < samples[minIdx] {
				minIdx = j
			}
			if samples[j] > samples[maxIdx] {
				maxIdx = j
			}
		}
		if int(samples[maxIdx])-int(samples[minIdx]) < minDelta {
			out[i] = state
			i++
			continue
		}

		rising := maxIdx > minIdx
		from, to := maxIdx, minIdx
		if rising {
			from, to = minIdx, maxIdx
		}
		best, bestSlope := from, 0
		for j := from; j <= to; j++ {
			if j > 0 && j < len(samples)-1 {
				slope := absInt(int(samples[j+1]) - int(samples[j-1]))
				if slope > bestSlope {
					best, bestSlope = j, slope
				}
			}
		}

		for k := i; k < best; k++ {
			out[k] = state
		}
		state = rising
		end := min(best+window, len(samples))
		for k := best; k < end; k++ {
			out[k] = state
		}
		i = end
	}
	for ; i < len(out); i++ {
		out[i] = state
	}
	return out
}

// RisingEdges returns the positions of low-to-high transitions, preceded by
// position 0 as the reference for the first period
func RisingEdges(levels []bool) []int {
	edges := []int{0}
	last := false
	for i, v := range levels {
		if v && !last {
			edges = append(edges, i)
		}
		last = v
	}
	return edges
}

// cycle is one square-wave period quantized to semitones above the base frequency
type cycle struct {
	semitone   int
	start, end int
}

func (d *Decoder) cycles(edges []int) []cycle {
	rate := float64(d.opts.SampleRate) * d.opts.Speed
	out := make([]cycle, 0, len(edges))
	for i := 0; i+1 < len(edges); i++ {
		period := edges[i+1] - edges[i]
		if period <= 0 {
			continue
		}
		freq := rate / float64(period)
		out = append(out, cycle{
			semitone: int(math.Round(12 * math.Log2(freq/d.opts.BaseFreq))),
			start:    edges[i],
			end:      edges[i+1],
		})
	}
	return out
}

// group collapses runs of equal semitones into notes. Runs no longer than
// MinCycles are noise and become silence. The final run is judged by the
// same length rule; older decoders held it to one cycle more.
func (d *Decoder) group(cycles []cycle) []melody.Note {
	var notes []melody.Note
	for i := 0; i < len(cycles); {
		j := i
		for j+1 < len(cycles) && cycles[j+1].semitone == cycles[i].semitone {
			j++
		}
		var freq uint16
		if j-i+1 > d.opts.MinCycles {
			freq = clampUint16(math.Round(d.opts.BaseFreq * math.Pow(2, float64(cycles[i].semitone)/12)))
		}
		dur := clampUint16(math.Round(1000 * float64(cycles[j].end-cycles[i].start) / (float64(d.opts.SampleRate) * d.opts.Speed)))
		if dur > 0 {
			notes = append(notes, melody.Note{Frequency: freq, Duration: dur})
		}
		i = j + 1
	}
	return notes
}

// Merge joins neighbouring notes of equal frequency
func Merge(notes []melody.Note) []melody.Note {
	if len(notes) == 0 {
		return nil
	}
	out := []melody.Note{notes[0]}
	for _, n := range notes[1:] {
		last := &out[len(out)-1]
		if last.Frequency == n.Frequency {
			last.Duration = clampUint16(float64(last.Duration) + float64(n.Duration))
			continue
		}
		out = append(out, n)
	}
	return out
}

// Smooth removes notes of at most maxMs that sit between two notes of equal
// frequency, giving their time to the following note
func Smooth(notes []melody.Note, maxMs int) []melody.Note {
	if len(notes) < 3 {
		return append([]melody.Note(nil), notes...)
	}
	work := append([]melody.Note(nil), notes...)
	out := []melody.Note{work[0]}
	for i := 1; i < len(work)-1; i++ {
		if int(work[i].Duration) <= maxMs && work[i-1].Frequency == work[i+1].Frequency {
			work[i+1].Duration = clampUint16(float64(work[i+1].Duration) + float64(work[i].Duration))
			continue
		}
		out = append(out, work[i])
	}
	return append(out, work[len(work)-1])
}

// TrimSilence drops leading and trailing rests
func TrimSilence(notes []melody.Note) []melody.Note {
	for len(notes) > 0 && notes[0].IsRest() {
		notes = notes[1:]
	}
	for len(notes) > 0 && notes[len(notes)-1].IsRest() {
		notes = notes[:len(notes)-1]
	}
	return notes
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampUint16(v float64) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}
