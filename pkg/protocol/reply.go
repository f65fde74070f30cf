package protocol

import (
	"encoding/binary"
	"fmt"
)

// Reply sizes
const (
	StatusSize         = 6
	EndUploadReplySize = 3
)

// Status is the reply to a StatusRequest
type Status struct {
	Length      uint16 `json:"length"`
	CursorIndex uint16 `json:"cursor_index"`
	Paused      bool   `json:"paused"`
	Receiving   bool   `json:"receiving"`
}

// MarshalBinary encodes s as {length, cursor, paused, receiving}
func (s Status) MarshalBinary() ([]byte, error) {
	out := make([]byte, StatusSize)
	binary.LittleEndian.PutUint16(out[0:2], s.Length)
	binary.LittleEndian.PutUint16(out[2:4], s.CursorIndex)
	out[4] = boolByte(s.Paused)
	out[5] = boolByte(s.Receiving)
	return out, nil
}

// ParseStatus decodes a status reply
func ParseStatus(b []byte) (Status, error) {
	if len(b) < StatusSize {
		return Status{}, fmt.Errorf("status reply: need %d bytes, got %d", StatusSize, len(b))
	}
	return Status{
		Length:      binary.LittleEndian.Uint16(b[0:2]),
		CursorIndex: binary.LittleEndian.Uint16(b[2:4]),
		Paused:      b[4] != 0,
		Receiving:   b[5] != 0,
	}, nil
}

// EndUploadReply encodes the reply sent after EndUpload
func EndUploadReply(length uint16) []byte {
	return []byte{byte(TagEndUpload), byte(length), byte(length >> 8)}
}

// ParseEndUploadReply decodes an end-upload reply and returns the committed length
func ParseEndUploadReply(b []byte) (uint16, error) {
	if len(b) < EndUploadReplySize {
		return 0, fmt.Errorf("end-upload reply: need %d bytes, got %d", EndUploadReplySize, len(b))
	}
	if Tag(b[0]) != TagEndUpload {
		return 0, fmt.Errorf("end-upload reply: unexpected tag 0x%02X", b[0])
	}
	return uint16(b[1]) | uint16(b[2])<<8, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
