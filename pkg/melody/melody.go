// Package melody defines notes, the bounded melody buffer and the on-disk melody format
package melody

import "fmt"

// DefaultCapacity is the number of notes a device can store
const DefaultCapacity = 10000

// Note is a single tone. Frequency 0 is silence; Duration 0 means hold until replaced.
type Note struct {
	Frequency uint16 `json:"frequency"` // Hz
	Duration  uint16 `json:"duration"`  // milliseconds
}

// IsRest reports whether the note is silent
func (n Note) IsRest() bool {
	return n.Frequency == 0
}

func (n Note) String() string {
	if n.IsRest() {
		return fmt.Sprintf("rest/%dms", n.Duration)
	}
	return fmt.Sprintf("%dHz/%dms", n.Frequency, n.Duration)
}

// Buffer is a fixed-capacity note store. Its backing array is allocated once;
// only the length and contents change afterwards.
type Buffer struct {
	notes []Note
	n     int
}

// NewBuffer allocates a buffer able to hold capacity notes
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{notes: make([]Note, capacity)}
}

// FromNotes builds a buffer sized exactly to notes
func FromNotes(notes []Note) *Buffer {
	b := NewBuffer(len(notes))
	for _, n := range notes {
		b.Append(n)
	}
	return b
}

// Append stores n at the end of the buffer. It returns false and stores
// nothing once the buffer is full.
func (b *Buffer) Append(n Note) bool {
	if b.n >= len(b.notes) {
		return false
	}
	b.notes[b.n] = n
	b.n++
	return true
}

// At returns the note at index i. Indexes at or beyond Len are never valid.
func (b *Buffer) At(i int) Note {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("melody: index %d out of range [0,%d)", i, b.n))
	}
	return b.notes[i]
}

// Len returns the number of stored notes
func (b *Buffer) Len() int { return b.n }

// Cap returns the fixed capacity
func (b *Buffer) Cap() int { return len(b.notes) }

// Full reports whether another Append would be dropped
func (b *Buffer) Full() bool { return b.n >= len(b.notes) }

// Reset empties the buffer without releasing storage
func (b *Buffer) Reset() { b.n = 0 }

// Notes returns a copy of the stored notes
func (b *Buffer) Notes() []Note {
	out := make([]Note, b.n)
	copy(out, b.notes[:b.n])
	return out
}

// TotalDuration sums the durations of all stored notes in milliseconds
func TotalDuration(notes []Note) int {
	total := 0
	for _, n := range notes {
		total += int(n.Duration)
	}
	return total
}
