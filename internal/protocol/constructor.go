package protocol

import (
	"fmt"
)

// Frame constructors. The bridge never writes to the controller; these build
// the byte sequences the controller emits, for the simulator and for tests.

// Stuff inserts a pad 0x00 after every literal 0x02. Inverse of Unstuff.
func Stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		out = append(out, b)
		if b == 0x02 {
			out = append(out, 0x00)
		}
	}
	return out
}

// SenseLayout describes the unstuffed Sense data around the temperature pairs.
// Zero values produce zero-filled header and trailer bytes.
type SenseLayout struct {
	Lead    [SenseLeadingOffset]byte
	Trailer [SenseTrailerLength]byte
}

// BuildSensePayload builds a Sense payload carrying temps.
//
// Payload layout:
//
//	[0]      lead     Unstuffed, skipped by the decoder
//	[1..]    stuffed  Lead(4) + temperature pairs (big-endian) + Trailer(6)
func BuildSensePayload(lead byte, layout SenseLayout, temps []Temperature) []byte {
	data := make([]byte, 0, SenseLeadingOffset+len(temps)*2+SenseTrailerLength)
	data = append(data, layout.Lead[:]...)
	for _, t := range temps {
		hi, lo := EncodeTemperature(t)
		data = append(data, hi, lo)
	}
	data = append(data, layout.Trailer[:]...)

	payload := make([]byte, 0, len(data)+8)
	payload = append(payload, lead)
	return append(payload, Stuff(data)...)
}

// BuildSenseFrame wraps payload in a Sense frame with a correct checksum.
// The declared length is len(payload)-lengthOffset and must fit in a byte.
func BuildSenseFrame(counter byte, payload []byte, lengthOffset int) ([]byte, error) {
	declared := len(payload) - lengthOffset
	if declared < 0 || declared > 0xFF {
		return nil, fmt.Errorf("sense payload of %d bytes cannot be declared with offset %d", len(payload), lengthOffset)
	}

	length := byte(declared)
	frame := make([]byte, 0, len(payload)+6)
	frame = append(frame, Preamble, SenseMarker, length, SenseLengthMarker, counter)
	frame = append(frame, payload...)
	frame = append(frame, SenseChecksum(length, counter, payload))
	return frame, nil
}

// BuildControlFrame wraps a 16-byte payload in a Control frame with a correct checksum.
func BuildControlFrame(counter byte, payload []byte) ([]byte, error) {
	if len(payload) != ControlPayloadLength {
		return nil, fmt.Errorf("control payload must be exactly %d bytes, got %d", ControlPayloadLength, len(payload))
	}

	frame := make([]byte, 0, ControlPayloadLength+5)
	frame = append(frame, Preamble, ControlMarker1, ControlMarker2, counter)
	frame = append(frame, payload...)
	frame = append(frame, ControlChecksum(counter, payload))
	return frame, nil
}

// SetBit sets or clears flag index in a Control payload.
func SetBit(payload []byte, index int, on bool) error {
	if index < 0 || index/8 >= len(payload) {
		return fmt.Errorf("flag index %d out of range for %d-byte payload", index, len(payload))
	}
	mask := byte(1) << (index % 8)
	if on {
		payload[index/8] |= mask
	} else {
		payload[index/8] &^= mask
	}
	return nil
}
