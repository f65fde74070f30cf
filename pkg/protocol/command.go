// Package protocol implements the byte protocol spoken between a tone sender and a tone device.
//
// A frame is a one-byte tag followed by a fixed-length payload. All multi-byte
// fields are little-endian; there is no checksum and no other framing.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies a command
type Tag byte

// Command tags
const (
	TagStartUpload   Tag = 0x01 // begin a new upload session
	TagEndUpload     Tag = 0x02 // commit the session, reply with note count
	TagPlay          Tag = 0x03 // resume/start playback
	TagStop          Tag = 0x04 // pause playback, silence output
	TagStatusRequest Tag = 0x05 // reply with Status
	TagStreamNote    Tag = 0x06 // freq:u16, dur:u16
)

// StreamNotePayloadSize is the payload length of a StreamNote frame
const StreamNotePayloadSize = 4

// PayloadSize returns the payload length for tag and whether the tag is known
func PayloadSize(tag Tag) (int, bool) {
	switch tag {
	case TagStartUpload, TagEndUpload, TagPlay, TagStop, TagStatusRequest:
		return 0, true
	case TagStreamNote:
		return StreamNotePayloadSize, true
	default:
		return 0, false
	}
}

func (t Tag) String() string {
	switch t {
	case TagStartUpload:
		return "StartUpload"
	case TagEndUpload:
		return "EndUpload"
	case TagPlay:
		return "Play"
	case TagStop:
		return "Stop"
	case TagStatusRequest:
		return "StatusRequest"
	case TagStreamNote:
		return "StreamNote"
	default:
		return fmt.Sprintf("Tag(0x%02X)", byte(t))
	}
}

// Command is one decoded frame. Frequency and Duration are only meaningful for StreamNote.
type Command struct {
	Tag       Tag
	Frequency uint16
	Duration  uint16
}

// Encode serializes c into its wire form
func Encode(c Command) []byte {
	size, _ := PayloadSize(c.Tag)
	out := make([]byte, 1+size)
	out[0] = byte(c.Tag)
	if c.Tag == TagStreamNote {
		binary.LittleEndian.PutUint16(out[1:3], c.Frequency)
		binary.LittleEndian.PutUint16(out[3:5], c.Duration)
	}
	return out
}

// StartUpload returns a StartUpload frame
func StartUpload() []byte { return []byte{byte(TagStartUpload)} }

// EndUpload returns an EndUpload frame
func EndUpload() []byte { return []byte{byte(TagEndUpload)} }

// Play returns a Play frame
func Play() []byte { return []byte{byte(TagPlay)} }

// Stop returns a Stop frame
func Stop() []byte { return []byte{byte(TagStop)} }

// StatusRequest returns a StatusRequest frame
func StatusRequest() []byte { return []byte{byte(TagStatusRequest)} }

// StreamNote returns a StreamNote frame
func StreamNote(frequency, duration uint16) []byte {
	return Encode(Command{Tag: TagStreamNote, Frequency: frequency, Duration: duration})
}
