package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestChecksumAdd(t *testing.T) {
	tests := []struct {
		name string
		seed byte
		add  byte
		want byte
	}{
		{"rotate only", 0x02, 0x00, 0x04},
		{"rotate and add", 0x02, 0x0E, 0x12},
		{"high bit wraps to low", 0x80, 0x00, 0x01},
		{"sum above 255 folds", 0xFF, 0x01, 0x01},
		{"maximum fold", 0xFF, 0xFF, 0xFF},
		{"exactly 255 does not fold", 0x7F, 0x01, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Checksum
			c.Reset(tt.seed)
			c.Add(tt.add)
			if got := c.Value(); got != tt.want {
				t.Errorf("Add(0x%02x) from 0x%02x = 0x%02x, want 0x%02x", tt.add, tt.seed, got, tt.want)
			}
		})
	}
}

func TestComputeChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"seed only", []byte{0x02}, 0x02},
		{
			name: "sense header and payload",
			data: []byte{
				0x02, 0x0E, 0x10, 0x05, 0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0xD7, 0xFF, 0x85,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			},
			want: 0x30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeChecksum(tt.data); got != tt.want {
				t.Errorf("ComputeChecksum() = 0x%02x, want 0x%02x", got, tt.want)
			}
		})
	}
}

func TestFrameChecksums(t *testing.T) {
	t.Run("sense", func(t *testing.T) {
		payload := []byte{
			0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0xD7, 0xFF, 0x85,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}
		if got := SenseChecksum(0x0E, 0x05, payload); got != 0x30 {
			t.Errorf("SenseChecksum() = 0x%02x, want 0x30", got)
		}
	})

	t.Run("control", func(t *testing.T) {
		payload := make([]byte, ControlPayloadLength)
		payload[2] = 0x04
		if got := ControlChecksum(0x07, payload); got != 0x0E {
			t.Errorf("ControlChecksum() = 0x%02x, want 0x0e", got)
		}
	})
}

func TestChecksumDetectsSingleByteCorruption(t *testing.T) {
	for i := range referenceSensePayload {
		corrupt := make([]byte, len(referenceSensePayload))
		copy(corrupt, referenceSensePayload)
		corrupt[i] ^= 0x01

		frame := concat([]byte{0x02, 0x02, 0x0E, 0x10, 0x05}, corrupt, []byte{0x30})
		r := NewReader(bytes.NewReader(frame))
		if _, err := r.ReadFrame(); !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("payload byte %d corrupted: error = %v, want ErrChecksumMismatch", i, err)
		}
	}
}

func TestChecksumDeterministic(t *testing.T) {
	data := concat([]byte{0x02, 0x0E, 0x10, 0x05}, referenceSensePayload)
	first := ComputeChecksum(data)
	for i := 0; i < 10; i++ {
		if got := ComputeChecksum(data); got != first {
			t.Fatalf("run %d: ComputeChecksum() = 0x%02x, want 0x%02x", i, got, first)
		}
	}
}
