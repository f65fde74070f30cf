package converter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/james-see/tonebridge/pkg/melody"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var scenario = []melody.Note{
	{Frequency: 440, Duration: 100},
	{Frequency: 0, Duration: 50},
	{Frequency: 523, Duration: 200},
}

func equalNotes(a, b []melody.Note) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"test.mid", FormatMIDI},
		{"test.midi", FormatMIDI},
		{"test.bin", FormatMelody},
		{"test.MEL", FormatMelody},
		{"melody.h", FormatHeader},
		{"preview.wav", FormatWAV},
		{"capture.pcm", FormatPCM},
		{"test.txt", FormatUnknown},
		{"test", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			result := DetectFormat(tt.filename)
			if result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), FormatMIDI},
		{"WAV file", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"C header", []byte("int melody[] = {\n  440\n};"), FormatHeader},
		{"Short data", []byte{0x00, 0x01}, FormatUnknown},
		{"melody records", melody.Marshal(scenario), FormatMelody},
		{"PCM (odd length)", []byte{0x10, 0x20, 0x30, 0x40, 0x50}, FormatPCM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectFormatFromContent(tt.data)
			if result != tt.expected {
				t.Errorf("DetectFormatFromContent() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMIDIRoundTrip(t *testing.T) {
	conv := NewMIDIConverter()

	data, err := conv.GenerateMIDI(scenario)
	if err != nil {
		t.Fatalf("GenerateMIDI() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("MThd")) {
		t.Fatalf("GenerateMIDI() output does not start with MThd")
	}

	got, err := conv.ParseMIDI(data)
	if err != nil {
		t.Fatalf("ParseMIDI() error = %v", err)
	}
	if !equalNotes(got, scenario) {
		t.Errorf("ParseMIDI() = %v, want %v", got, scenario)
	}
}

func TestParseMIDIHighestKeyWins(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	var track smf.Track
	// 480000 µs per quarter at 480 ticks: one tick per millisecond
	track.Add(0, smf.Message([]byte{0xFF, 0x51, 0x03, 0x07, 0x53, 0x00}))
	track.Add(0, midi.NoteOn(0, 60, 100))
	track.Add(100, midi.NoteOn(0, 64, 100))
	track.Add(100, midi.NoteOff(0, 64))
	track.Add(100, midi.NoteOff(0, 60))
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := NewMIDIConverter().ParseMIDI(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseMIDI() error = %v", err)
	}
	want := []melody.Note{{Frequency: 262, Duration: 100}, {Frequency: 330, Duration: 100}, {Frequency: 262, Duration: 100}}
	if !equalNotes(got, want) {
		t.Errorf("ParseMIDI() = %v, want %v", got, want)
	}
}

func TestParseMIDIInvalid(t *testing.T) {
	if _, err := NewMIDIConverter().ParseMIDI([]byte("not midi")); err == nil {
		t.Error("ParseMIDI() error = nil, want parse error")
	}
}

func TestKeyFrequency(t *testing.T) {
	tests := []struct {
		key  uint8
		freq uint16
	}{
		{69, 440},
		{72, 523},
		{60, 262},
		{81, 880},
	}
	for _, tt := range tests {
		if got := keyToFrequency(tt.key); got != tt.freq {
			t.Errorf("keyToFrequency(%d) = %d, want %d", tt.key, got, tt.freq)
		}
		if got := frequencyToKey(tt.freq); got != tt.key {
			t.Errorf("frequencyToKey(%d) = %d, want %d", tt.freq, got, tt.key)
		}
	}
}

func TestPreview(t *testing.T) {
	data, err := Preview(scenario, PreviewOptions{SampleRate: 8000, Amplitude: 0.5})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("Preview() header = %q, want RIFF/WAVE", data[:12])
	}
	wantSamples := 8000 * 350 / 1000
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(wantSamples*2) {
		t.Errorf("data chunk size = %d, want %d", got, wantSamples*2)
	}
	if len(data) != wavHeaderSize+wantSamples*2 {
		t.Errorf("len(Preview()) = %d, want %d", len(data), wavHeaderSize+wantSamples*2)
	}
	// the rest sits between 100 ms and 150 ms
	restSample := int16(binary.LittleEndian.Uint16(data[wavHeaderSize+2*(8000*120/1000):]))
	if restSample != 0 {
		t.Errorf("sample during rest = %d, want 0", restSample)
	}
	if _, err := Preview(scenario, PreviewOptions{SampleRate: 8000, Amplitude: 2}); err == nil {
		t.Error("Preview() with amplitude 2 error = nil, want error")
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "song.bin")
	if err := melody.WriteFile(in, scenario); err != nil {
		t.Fatal(err)
	}
	conv := New()

	tests := []struct {
		name  string
		out   string
		check func(t *testing.T, data []byte)
	}{
		{"midi", "song.mid", func(t *testing.T, data []byte) {
			notes, err := conv.Decode(data, FormatMIDI)
			if err != nil || !equalNotes(notes, scenario) {
				t.Errorf("decoded %v, %v; want %v", notes, err, scenario)
			}
		}},
		{"header", "song.h", func(t *testing.T, data []byte) {
			if !strings.Contains(string(data), "440, 0, 523") || !strings.Contains(string(data), "100, 50, 200") {
				t.Errorf("header = %q, want both arrays", data)
			}
		}},
		{"wav", "song.wav", func(t *testing.T, data []byte) {
			if DetectFormatFromContent(data) != FormatWAV {
				t.Errorf("output is not a WAV file")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.out)
			if err := conv.ConvertFile(in, out); err != nil {
				t.Fatalf("ConvertFile() error = %v", err)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, data)
		})
	}
}

func TestConvertFileUnsupported(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "song.bin")
	if err := melody.WriteFile(in, scenario); err != nil {
		t.Fatal(err)
	}
	conv := New()

	if err := conv.ConvertFile(in, filepath.Join(dir, "song.pcm")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ConvertFile(-> pcm) error = %v, want ErrUnsupported", err)
	}
	if err := conv.ConvertFile(in, filepath.Join(dir, "song.txt")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ConvertFile(-> txt) error = %v, want ErrUnsupported", err)
	}
}

func TestGetSupportedConversions(t *testing.T) {
	for _, conv := range GetSupportedConversions() {
		parts := strings.Split(conv, " -> ")
		if len(parts) != 2 {
			t.Errorf("malformed conversion %q", conv)
			continue
		}
		if parts[1] == string(FormatPCM) {
			t.Errorf("conversion %q writes PCM, which is input only", conv)
		}
	}
}
