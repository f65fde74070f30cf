package converter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/james-see/tonebridge/pkg/melody"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	defaultTicksPerQuarter = 480
	// 125 bpm at 480 ticks per quarter makes one tick one millisecond
	defaultTempo = 125.0
	// tempo assumed until a file sets one (120 bpm)
	defaultMicrosPerQuarter = 500000
)

// MIDIConverter handles MIDI file parsing and generation
type MIDIConverter struct {
	ticksPerQuarter uint16
	tempo           float64
	velocity        uint8
}

// NewMIDIConverter creates a new MIDI converter
func NewMIDIConverter() *MIDIConverter {
	return &MIDIConverter{
		ticksPerQuarter: defaultTicksPerQuarter,
		tempo:           defaultTempo,
		velocity:        100,
	}
}

// ParseMIDIFile reads a MIDI file and extracts its melody
func (m *MIDIConverter) ParseMIDIFile(filename string) ([]melody.Note, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return m.ParseMIDI(data)
}

type midiEventKind int

const (
	evTempo midiEventKind = iota
	evNoteOff
	evNoteOn
	evEnd
)

type midiEvent struct {
	tick  int64
	kind  midiEventKind
	key   uint8
	micro uint32
}

// ParseMIDI flattens all tracks into a monophonic melody. While several keys
// are held the highest one sounds; gaps become rests.
func (m *MIDIConverter) ParseMIDI(data []byte) ([]melody.Note, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	tpq := int64(defaultTicksPerQuarter)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		tpq = int64(mt.Resolution())
	}

	var events []midiEvent
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			// Tempo meta message (FF 51 03 tt tt tt)
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				micro := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if micro > 0 {
					events = append(events, midiEvent{tick: tick, kind: evTempo, micro: micro})
				}
				continue
			}
			// End of track (FF 2F 00)
			if len(msg) >= 2 && msg[0] == 0xFF && msg[1] == 0x2F {
				events = append(events, midiEvent{tick: tick, kind: evEnd})
				continue
			}

			// Note On: 0x9n nn vv, Note Off: 0x8n nn vv or Note On with velocity 0
			if len(msg) >= 3 {
				status := msg[0] & 0xF0
				switch {
				case status == 0x90 && msg[2] > 0:
					events = append(events, midiEvent{tick: tick, kind: evNoteOn, key: msg[1]})
				case status == 0x80 || status == 0x90:
					events = append(events, midiEvent{tick: tick, kind: evNoteOff, key: msg[1]})
				}
			}
		}
	}
	// at equal ticks: tempo, releases, presses, then end of track
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].kind < events[j].kind
	})

	var (
		held     [128]int
		sounding uint8
		segStart float64
		nowMs    float64
		lastTick int64
		micro    = float64(defaultMicrosPerQuarter)
		notes    []melody.Note
	)
	highest := func() uint8 {
		for k := 127; k >= 0; k-- {
			if held[k] > 0 {
				return uint8(k) + 1
			}
		}
		return 0
	}
	flush := func() {
		dur := math.Round(nowMs - segStart)
		if dur > 0 {
			var freq uint16
			if sounding > 0 {
				freq = keyToFrequency(sounding - 1)
			}
			notes = appendSplit(notes, freq, dur)
		}
		segStart = nowMs
	}

	for _, ev := range events {
		nowMs += float64(ev.tick-lastTick) * micro / float64(tpq) / 1000
		lastTick = ev.tick

		switch ev.kind {
		case evTempo:
			micro = float64(ev.micro)
			continue
		case evNoteOn:
			held[ev.key&0x7F]++
		case evNoteOff:
			if held[ev.key&0x7F] > 0 {
				held[ev.key&0x7F]--
			}
		case evEnd:
			if sounding == 0 {
				flush()
			}
			continue
		}

		if next := highest(); next != sounding {
			flush()
			sounding = next
		}
	}
	if sounding != 0 {
		flush()
	}
	for _, n := range notes {
		if !n.IsRest() {
			return notes, nil
		}
	}
	return nil, errors.New("no notes found in MIDI data")
}

// appendSplit appends a note, splitting durations beyond the 16-bit field
func appendSplit(notes []melody.Note, freq uint16, ms float64) []melody.Note {
	for ms > 0 {
		d := math.Min(ms, math.MaxUint16)
		notes = append(notes, melody.Note{Frequency: freq, Duration: uint16(d)})
		ms -= d
	}
	return notes
}

// GenerateMIDI creates a single-track MIDI file from notes. Rests become
// gaps and a trailing rest extends the end of the track.
func (m *MIDIConverter) GenerateMIDI(notes []melody.Note) ([]byte, error) {
	if len(notes) == 0 {
		return nil, errors.New("no notes to write")
	}

	// Create SMF with one track
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var track smf.Track

	// Add tempo meta event
	microsecondsPerBeat := uint32(60000000.0 / m.tempo)
	tempoData := smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	})
	track.Add(0, tempoData)

	ticksPerMs := float64(m.ticksPerQuarter) * 1000 / float64(microsecondsPerBeat)
	channel := uint8(0)
	var pending uint32

	for _, n := range notes {
		ticks := uint32(math.Round(float64(n.Duration) * ticksPerMs))
		if n.IsRest() || ticks == 0 {
			pending += ticks
			continue
		}
		key := frequencyToKey(n.Frequency)
		track.Add(pending, midi.NoteOn(channel, key, m.velocity))
		track.Add(ticks, midi.NoteOff(channel, key))
		pending = 0
	}

	// Add end of track
	track.Close(pending)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	// Write to buffer
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteMIDIFile writes notes to a MIDI file
func (m *MIDIConverter) WriteMIDIFile(notes []melody.Note, filename string) error {
	data, err := m.GenerateMIDI(notes)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// keyToFrequency returns the equal-tempered frequency of a MIDI key (A4 = 69 = 440 Hz)
func keyToFrequency(key uint8) uint16 {
	return uint16(math.Round(440 * math.Pow(2, (float64(key)-69)/12)))
}

// frequencyToKey returns the nearest MIDI key
func frequencyToKey(freq uint16) uint8 {
	k := math.Round(69 + 12*math.Log2(float64(freq)/440))
	return uint8(math.Max(0, math.Min(127, k)))
}
