package sensor

import (
	"fmt"

	"github.com/muurk/easyfire/internal/protocol"
)

// Kind is the value type a descriptor produces.
type Kind int

const (
	// KindTemperature reads a slot of the decoded Sense temperatures
	KindTemperature Kind = iota
	// KindFlag reads one bit of the Control payload
	KindFlag
	// KindRaw stores the whole payload of its frame kind
	KindRaw
)

// String returns the name used in config files and JSON
func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindFlag:
		return "flag"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "temperature":
		return KindTemperature, nil
	case "flag":
		return KindFlag, nil
	case "raw":
		return KindRaw, nil
	default:
		return 0, fmt.Errorf("unknown sensor kind %q (expected temperature, flag or raw)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Descriptor names one value extracted from a frame.
//
// Index is a slot in the decoded temperature list for KindTemperature and a
// bit position for KindFlag. It is ignored for KindRaw. Frame is implied by
// the kind except for KindRaw.
type Descriptor struct {
	Index int                `yaml:"index" json:"index"`
	Name  string             `yaml:"name" json:"name"`
	Kind  Kind               `yaml:"kind" json:"kind"`
	Frame protocol.FrameKind `yaml:"frame,omitempty" json:"frame"`
}

// Unit returns the unit of measurement, or "" for dimensionless values
func (d Descriptor) Unit() string {
	if d.Kind == KindTemperature {
		return "°C"
	}
	return ""
}

// String mirrors the one-line sensor dump of the reference tooling
func (d Descriptor) String() string {
	return fmt.Sprintf("%s: I: %d T: %s(%s)", d.Name, d.Index, d.Kind, d.Unit())
}

// normalize fixes Frame for kinds that imply it
func (d Descriptor) normalize() Descriptor {
	switch d.Kind {
	case KindTemperature:
		d.Frame = protocol.FrameSense
	case KindFlag:
		d.Frame = protocol.FrameControl
	}
	return d
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor at index %d has no name", d.Index)
	}
	if d.Index < 0 {
		return fmt.Errorf("sensor %q: negative index %d", d.Name, d.Index)
	}
	switch d.Kind {
	case KindTemperature:
	case KindFlag:
		if d.Index >= protocol.MaxFlagIndex {
			return fmt.Errorf("sensor %q: flag index %d exceeds %d", d.Name, d.Index, protocol.MaxFlagIndex-1)
		}
	case KindRaw:
		if d.Frame != protocol.FrameSense && d.Frame != protocol.FrameControl {
			return fmt.Errorf("sensor %q: unknown frame kind %s", d.Name, d.Frame)
		}
	default:
		return fmt.Errorf("sensor %q: unknown kind %s", d.Name, d.Kind)
	}
	return nil
}

// DefaultDescriptors returns the KWB Easyfire sensor layout.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{Index: 0, Name: "Flow", Kind: KindTemperature},
		{Index: 1, Name: "Return", Kind: KindTemperature},
		{Index: 2, Name: "Boiler 0", Kind: KindTemperature},
		{Index: 3, Name: "Furnace", Kind: KindTemperature},
		{Index: 4, Name: "Buffer Tank 2", Kind: KindTemperature},
		{Index: 5, Name: "Buffer Tank 1", Kind: KindTemperature},
		{Index: 6, Name: "Outside", Kind: KindTemperature},
		{Index: 7, Name: "Exhaust", Kind: KindTemperature},
		{Index: 8, Name: "Unknown", Kind: KindTemperature},
		{Index: 12, Name: "Stoker Channel", Kind: KindTemperature},
		{Index: 17, Name: "Return Mixer", Kind: KindFlag, Frame: protocol.FrameControl},
		{Index: 25, Name: "Resupply", Kind: KindFlag, Frame: protocol.FrameControl},
	}
}
