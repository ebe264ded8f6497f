package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Sense data layout after unstuffing
const (
	SenseLeadingOffset = 4 // Bytes before the first temperature pair
	SenseTrailerLength = 6 // Bytes after the last temperature pair

	// MaxFlagIndex is one past the highest addressable Control bit
	MaxFlagIndex = ControlPayloadLength * 8
)

// Temperature is a signed fixed-point value in tenths of a degree Celsius.
type Temperature int16

// DecodeTemperature decodes a big-endian two's-complement pair.
func DecodeTemperature(hi, lo byte) Temperature {
	v := int(hi)<<8 | int(lo)
	if v > 32767 {
		v -= 65536
	}
	return Temperature(v)
}

// EncodeTemperature is the inverse of DecodeTemperature
func EncodeTemperature(t Temperature) (hi, lo byte) {
	u := uint16(t)
	return byte(u >> 8), byte(u)
}

// ParseTemperature parses a decimal string with at most one fractional digit.
func ParseTemperature(s string) (Temperature, error) {
	neg := strings.HasPrefix(s, "-")
	whole, frac, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if len(frac) > 1 {
		return 0, fmt.Errorf("temperature %q has more than one decimal place", s)
	}
	// Atoi would accept a second sign
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, fmt.Errorf("invalid temperature %q", s)
	}
	w, err := strconv.Atoi(whole)
	if err != nil {
		return 0, fmt.Errorf("invalid temperature %q: %w", s, err)
	}
	f := 0
	if frac != "" {
		if f, err = strconv.Atoi(frac); err != nil {
			return 0, fmt.Errorf("invalid temperature %q: %w", s, err)
		}
	}
	tenths := w*10 + f
	if neg {
		tenths = -tenths
	}
	if tenths < -32768 || tenths > 32767 {
		return 0, fmt.Errorf("temperature %q out of range", s)
	}
	return Temperature(tenths), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Celsius returns the value in degrees, dividing once
func (t Temperature) Celsius() float64 {
	return float64(t) / 10
}

// String formats the value with one decimal place, e.g. "-12.3"
func (t Temperature) String() string {
	v := int(t)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%d", sign, v/10, v%10)
}

// Unstuff removes the pad 0x00 that follows every literal 0x02.
// Input without 02 00 pairs is returned unchanged (as a copy).
func Unstuff(data []byte) []byte {
	out := make([]byte, 0, len(data))
	var last byte
	for _, b := range data {
		if !(last == 0x02 && b == 0x00) {
			out = append(out, b)
		}
		last = b
	}
	return out
}

// SenseData returns the unstuffed Sense data. The first payload byte is not
// part of the stuffed region and is skipped.
func SenseData(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	return Unstuff(payload[1:])
}

// DecodeSense decodes a Sense payload into temperatures in slot order.
func DecodeSense(payload []byte) ([]Temperature, error) {
	if len(payload) == 0 {
		return nil, newDecodeRangeError(FrameSense, "empty sense payload", 0, 1)
	}
	data := SenseData(payload)
	need := SenseLeadingOffset + SenseTrailerLength
	if len(data) < need {
		return nil, newDecodeRangeError(FrameSense, "sense data shorter than offsets", len(data), need)
	}

	count := (len(data) - need) / 2
	temps := make([]Temperature, count)
	for i := range temps {
		n := SenseLeadingOffset + i*2
		temps[i] = DecodeTemperature(data[n], data[n+1])
	}
	return temps, nil
}

// Bit extracts flag index from a Control payload, least significant bit first.
func Bit(payload []byte, index int) (bool, error) {
	if index < 0 || index/8 >= len(payload) {
		return false, newDecodeRangeError(FrameControl, fmt.Sprintf("flag index %d", index), len(payload), index/8+1)
	}
	return (payload[index/8]>>(index%8))&1 == 1, nil
}

// BitString renders a byte most significant bit first, e.g. "00000100".
func BitString(b byte) string {
	return fmt.Sprintf("%08b", b)
}

// Reading is the decoded content of one frame.
type Reading struct {
	Kind         FrameKind
	Counter      byte
	Temperatures []Temperature // Sense only
	Control      []byte        // Control only
	Raw          []byte        // Copy of the frame payload
}

// Flag returns bit index of a Control reading.
func (r *Reading) Flag(index int) (bool, error) {
	if r.Kind != FrameControl {
		return false, fmt.Errorf("flag requested from %s reading", r.Kind)
	}
	return Bit(r.Control, index)
}

// Decode decodes a frame. Checksum validity is not checked here.
func Decode(f *Frame) (*Reading, error) {
	raw := make([]byte, len(f.Payload))
	copy(raw, f.Payload)

	reading := &Reading{
		Kind:    f.Kind,
		Counter: f.Counter,
		Raw:     raw,
	}

	switch f.Kind {
	case FrameSense:
		temps, err := DecodeSense(f.Payload)
		if err != nil {
			return nil, err
		}
		reading.Temperatures = temps
	case FrameControl:
		if len(f.Payload) != ControlPayloadLength {
			return nil, newDecodeRangeError(FrameControl, "control payload", len(f.Payload), ControlPayloadLength)
		}
		reading.Control = raw
	default:
		return nil, fmt.Errorf("unknown frame kind %s", f.Kind)
	}
	return reading, nil
}
