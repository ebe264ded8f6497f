package protocol

import "math/bits"

// Checksum is the rolling rotate-left-and-add accumulator used by the controller.
type Checksum byte

// Reset seeds the accumulator with b.
func (c *Checksum) Reset(b byte) {
	*c = Checksum(b)
}

// Add rotates the accumulator left by one bit and adds b, folding sums above 255.
func (c *Checksum) Add(b byte) {
	sum := int(bits.RotateLeft8(byte(*c), 1)) + int(b)
	if sum > 255 {
		sum -= 255
	}
	*c = Checksum(sum)
}

// Value returns the current accumulator value.
func (c Checksum) Value() byte {
	return byte(c)
}

// ComputeChecksum seeds with data[0] and folds the remaining bytes.
// Returns 0 for empty input.
func ComputeChecksum(data []byte) byte {
	if len(data) == 0 {
		return 0
	}
	var c Checksum
	c.Reset(data[0])
	for _, b := range data[1:] {
		c.Add(b)
	}
	return c.Value()
}

// SenseChecksum returns the checksum a well-formed Sense frame carries.
// The reader re-seeds on the sense marker, so the first preamble byte is not covered.
func SenseChecksum(length, counter byte, payload []byte) byte {
	data := make([]byte, 0, len(payload)+4)
	data = append(data, SenseMarker, length, SenseLengthMarker, counter)
	data = append(data, payload...)
	return ComputeChecksum(data)
}

// ControlChecksum returns the checksum a well-formed Control frame carries.
func ControlChecksum(counter byte, payload []byte) byte {
	data := make([]byte, 0, len(payload)+4)
	data = append(data, Preamble, ControlMarker1, ControlMarker2, counter)
	data = append(data, payload...)
	return ComputeChecksum(data)
}
