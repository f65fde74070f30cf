package melody

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// RecordSize is the size of one on-disk / on-wire note record
const RecordSize = 4

// ErrTruncatedRecord is returned when melody data ends in the middle of a record
var ErrTruncatedRecord = errors.New("melody: truncated record")

// PutRecord writes n into b[0:4] as {frequency, duration}, little-endian
func PutRecord(b []byte, n Note) {
	binary.LittleEndian.PutUint16(b[0:2], n.Frequency)
	binary.LittleEndian.PutUint16(b[2:4], n.Duration)
}

// ParseRecord reads a note from b[0:4]
func ParseRecord(b []byte) Note {
	return Note{
		Frequency: binary.LittleEndian.Uint16(b[0:2]),
		Duration:  binary.LittleEndian.Uint16(b[2:4]),
	}
}

// Marshal encodes notes as back-to-back records with no header
func Marshal(notes []Note) []byte {
	out := make([]byte, len(notes)*RecordSize)
	for i, n := range notes {
		PutRecord(out[i*RecordSize:], n)
	}
	return out
}

// Unmarshal decodes a melody file. End of data marks end of melody.
func Unmarshal(data []byte) ([]Note, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncatedRecord, len(data)%RecordSize)
	}
	notes := make([]Note, 0, len(data)/RecordSize)
	for off := 0; off < len(data); off += RecordSize {
		notes = append(notes, ParseRecord(data[off:]))
	}
	return notes, nil
}

// Read decodes records from r until EOF
func Read(r io.Reader) ([]Note, error) {
	br := bufio.NewReader(r)
	var notes []Note
	rec := make([]byte, RecordSize)
	for {
		_, err := io.ReadFull(br, rec)
		if errors.Is(err, io.EOF) {
			return notes, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return notes, ErrTruncatedRecord
		}
		if err != nil {
			return notes, err
		}
		notes = append(notes, ParseRecord(rec))
	}
}

// ReadFile loads a melody file from disk
func ReadFile(filename string) ([]Note, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open melody file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// WriteFile stores notes as a melody file
func WriteFile(filename string, notes []Note) error {
	return os.WriteFile(filename, Marshal(notes), 0644)
}

// CArrays renders notes as the two parallel C arrays used by microcontroller sketches
func CArrays(notes []Note) string {
	freqs := make([]string, len(notes))
	durs := make([]string, len(notes))
	for i, n := range notes {
		freqs[i] = strconv.Itoa(int(n.Frequency))
		durs[i] = strconv.Itoa(int(n.Duration))
	}

	var s strings.Builder
	s.WriteString("int melody[] = {\n")
	s.WriteString("  " + strings.Join(freqs, ", ") + "\n")
	s.WriteString("};\n\n")
	s.WriteString("int durations[] = {\n")
	s.WriteString("  " + strings.Join(durs, ", ") + "\n")
	s.WriteString("};\n")
	return s.String()
}
