package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrIncomplete means the buffered bytes do not yet hold a whole frame
var ErrIncomplete = errors.New("protocol: incomplete frame")

// UnknownTagError reports a tag byte that is not part of the command set.
// The offending byte has already been skipped.
type UnknownTagError struct {
	Tag byte
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("protocol: unknown command tag 0x%02X", e.Tag)
}

// Decoder reassembles frames from a byte stream. It is not safe for concurrent use.
type Decoder struct {
	buf []byte
	off int // start of the undecoded bytes in buf
}

// NewDecoder returns an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 64)}
}

// Feed appends newly received bytes. Nothing is dropped; callers drain with
// Next after every Feed, so at most one partial frame stays behind.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf, d.off = d.buf[:n], 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes waiting for a complete frame
func (d *Decoder) Buffered() int { return len(d.buf) - d.off }

// Reset drops any partial frame
func (d *Decoder) Reset() { d.buf, d.off = d.buf[:0], 0 }

// Next decodes one frame. It returns ErrIncomplete without consuming anything
// when the frame is not complete yet, and *UnknownTagError after skipping an
// unrecognized tag byte.
func (d *Decoder) Next() (Command, error) {
	pending := d.buf[d.off:]
	if len(pending) == 0 {
		return Command{}, ErrIncomplete
	}

	tag := Tag(pending[0])
	size, ok := PayloadSize(tag)
	if !ok {
		d.consume(1)
		return Command{}, &UnknownTagError{Tag: byte(tag)}
	}
	if len(pending) < 1+size {
		return Command{}, ErrIncomplete
	}

	cmd := Command{Tag: tag}
	if tag == TagStreamNote {
		cmd.Frequency = binary.LittleEndian.Uint16(pending[1:3])
		cmd.Duration = binary.LittleEndian.Uint16(pending[3:5])
	}
	d.consume(1 + size)
	return cmd, nil
}

func (d *Decoder) consume(n int) {
	d.off += n
	if d.off == len(d.buf) {
		d.Reset()
	}
}
