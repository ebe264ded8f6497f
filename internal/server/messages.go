package server

import (
	"time"

	"github.com/muurk/easyfire/internal/sensor"
)

// SensorJSON is one sensor in a snapshot message.
type SensorJSON struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Frame     string     `json:"frame"`
	Index     int        `json:"index"`
	Unit      string     `json:"unit,omitempty"`
	Value     any        `json:"value"`
	Valid     bool       `json:"valid"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// SnapshotMessage is the body of GET /api/sensors and of every /ws message.
type SnapshotMessage struct {
	Seq       uint64       `json:"seq"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
	Sensors   []SensorJSON `json:"sensors"`
}

// Lookup returns the named sensor of the message
func (m *SnapshotMessage) Lookup(name string) (SensorJSON, bool) {
	for _, s := range m.Sensors {
		if s.Name == name {
			return s, true
		}
	}
	return SensorJSON{}, false
}

// DescriptorJSON is one entry of GET /api/descriptors.
type DescriptorJSON struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Frame string `json:"frame"`
	Index int    `json:"index"`
	Unit  string `json:"unit,omitempty"`
}

// NewSnapshotMessage converts a snapshot for the wire
func NewSnapshotMessage(snap *sensor.Snapshot) *SnapshotMessage {
	entries := snap.Entries()
	msg := &SnapshotMessage{
		Seq:     snap.Seq,
		Sensors: make([]SensorJSON, len(entries)),
	}
	if !snap.Taken.IsZero() {
		taken := snap.Taken
		msg.UpdatedAt = &taken
	}
	for i, e := range entries {
		s := SensorJSON{
			Name:  e.Name,
			Kind:  e.Kind.String(),
			Frame: e.Frame.String(),
			Index: e.Index,
			Unit:  e.Unit(),
			Value: e.Value.Any(),
			Valid: e.Value.Valid,
		}
		if e.Value.Valid {
			updated := e.Value.UpdatedAt
			s.UpdatedAt = &updated
		}
		msg.Sensors[i] = s
	}
	return msg
}

// NewDescriptorList converts descriptors for the wire
func NewDescriptorList(descs []sensor.Descriptor) []DescriptorJSON {
	out := make([]DescriptorJSON, len(descs))
	for i, d := range descs {
		out[i] = DescriptorJSON{
			Name:  d.Name,
			Kind:  d.Kind.String(),
			Frame: d.Frame.String(),
			Index: d.Index,
			Unit:  d.Unit(),
		}
	}
	return out
}
