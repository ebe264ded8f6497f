package protocol

import (
	"encoding/hex"
	"fmt"
)

// Wire constants
const (
	Preamble          = 0x02 // First byte of every frame
	SenseMarker       = 0x02 // Second byte of a Sense frame
	SenseLengthMarker = 0x10 // Follows the Sense length byte
	ControlMarker1    = 0x15 // Second byte of a Control frame
	ControlMarker2    = 0x11 // Third byte of a Control frame

	// ControlPayloadLength is the fixed Control payload size
	ControlPayloadLength = 16

	// DefaultSenseLengthOffset is added to the declared Sense length to get the
	// number of payload bytes on the wire. Observed captures carry one byte more
	// than the length field declares.
	DefaultSenseLengthOffset = 1
)

// FrameKind identifies the two frame encodings.
type FrameKind int

const (
	// FrameSense is a variable-length frame of stuffed temperature data
	FrameSense FrameKind = iota
	// FrameControl is a fixed 16-byte frame of actuator flags
	FrameControl
)

// String returns the lowercase kind name used in logs, metrics and JSON
func (k FrameKind) String() string {
	switch k {
	case FrameSense:
		return "sense"
	case FrameControl:
		return "control"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseFrameKind is the inverse of FrameKind.String.
func ParseFrameKind(s string) (FrameKind, error) {
	switch s {
	case "sense":
		return FrameSense, nil
	case "control":
		return FrameControl, nil
	default:
		return 0, fmt.Errorf("unknown frame kind %q (expected sense or control)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (k FrameKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *FrameKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFrameKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Frame is one complete packet as recognized by Reader.
type Frame struct {
	Kind             FrameKind
	Counter          byte   // Frame sequence counter (opaque)
	DeclaredLength   byte   // Length field as sent (Sense only)
	Payload          []byte // Raw payload, still stuffed for Sense frames
	ReceivedChecksum byte
	ComputedChecksum byte
}

// Valid reports whether the received checksum matches the computed one
func (f *Frame) Valid() bool {
	return f.ReceivedChecksum == f.ComputedChecksum
}

// Bytes re-encodes the frame as it appeared on the wire.
// The received checksum is emitted, so a corrupt frame stays corrupt.
func (f *Frame) Bytes() []byte {
	out := make([]byte, 0, len(f.Payload)+6)
	switch f.Kind {
	case FrameSense:
		out = append(out, Preamble, SenseMarker, f.DeclaredLength, SenseLengthMarker, f.Counter)
	case FrameControl:
		out = append(out, Preamble, ControlMarker1, ControlMarker2, f.Counter)
	}
	out = append(out, f.Payload...)
	return append(out, f.ReceivedChecksum)
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{kind=%s, counter=%d, length=%d, checksum=0x%02x/0x%02x, payload=%s}",
		f.Kind, f.Counter, len(f.Payload), f.ReceivedChecksum, f.ComputedChecksum, hex.EncodeToString(f.Payload))
}
