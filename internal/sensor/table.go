package sensor

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/easyfire/internal/protocol"
)

// Value is the latest decoded value of one descriptor.
type Value struct {
	Kind        Kind
	Temperature protocol.Temperature
	Flag        bool
	Raw         []byte
	Valid       bool // False until the first matching frame has been decoded
	UpdatedAt   time.Time
}

// String formats the value for dumps
func (v Value) String() string {
	if !v.Valid {
		return "None"
	}
	switch v.Kind {
	case KindTemperature:
		return v.Temperature.String()
	case KindFlag:
		if v.Flag {
			return "1"
		}
		return "0"
	default:
		return hex.EncodeToString(v.Raw)
	}
}

// Any returns the value as a JSON-friendly scalar, or nil when not yet valid
func (v Value) Any() any {
	if !v.Valid {
		return nil
	}
	switch v.Kind {
	case KindTemperature:
		return v.Temperature.Celsius()
	case KindFlag:
		return v.Flag
	default:
		return hex.EncodeToString(v.Raw)
	}
}

// Entry pairs a descriptor with its value.
type Entry struct {
	Descriptor
	Value Value
}

// Snapshot is an immutable view of every descriptor's value.
type Snapshot struct {
	Seq   uint64    // Number of updates applied before this snapshot
	Taken time.Time // Time of the update that produced it
	descs []Descriptor
	vals  []Value
	index map[string]int
}

// Entries returns the values in descriptor order
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.descs))
	for i := range s.descs {
		out[i] = Entry{Descriptor: s.descs[i], Value: s.vals[i]}
	}
	return out
}

// Map returns the values keyed by descriptor name
func (s *Snapshot) Map() map[string]Value {
	out := make(map[string]Value, len(s.descs))
	for i, d := range s.descs {
		out[d.Name] = s.vals[i]
	}
	return out
}

// Lookup returns the value of the named descriptor
func (s *Snapshot) Lookup(name string) (Value, bool) {
	i, ok := s.index[name]
	if !ok {
		return Value{}, false
	}
	return s.vals[i], true
}

// String renders one line per sensor
func (s *Snapshot) String() string {
	var b strings.Builder
	for i, d := range s.descs {
		fmt.Fprintf(&b, "%s V: %s\n", d, s.vals[i])
	}
	return b.String()
}

// Table holds the current value of a fixed set of descriptors.
//
// Readers get immutable snapshots through an atomic pointer and never block.
// Update is serialized by a mutex and publishes a fresh snapshot.
type Table struct {
	descs []Descriptor
	index map[string]int

	mu      sync.Mutex // Serializes writers
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewTable validates descriptors and returns a table with every value unset.
func NewTable(descriptors []Descriptor) (*Table, error) {
	descs := make([]Descriptor, len(descriptors))
	index := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		d = d.normalize()
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := index[d.Name]; dup {
			return nil, fmt.Errorf("duplicate sensor name %q", d.Name)
		}
		index[d.Name] = i
		descs[i] = d
	}

	vals := make([]Value, len(descs))
	for i, d := range descs {
		vals[i] = Value{Kind: d.Kind}
	}

	t := &Table{
		descs: descs,
		index: index,
		now:   time.Now,
	}
	t.current.Store(&Snapshot{descs: descs, vals: vals, index: index})
	return t, nil
}

// Descriptors returns a copy of the descriptors in table order
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, len(t.descs))
	copy(out, t.descs)
	return out
}

// Snapshot returns the current snapshot
func (t *Table) Snapshot() *Snapshot {
	return t.current.Load()
}

// Get returns the current value of d, matched by name
func (t *Table) Get(d Descriptor) (Value, bool) {
	return t.Lookup(d.Name)
}

// Lookup returns the current value of the named descriptor
func (t *Table) Lookup(name string) (Value, bool) {
	return t.Snapshot().Lookup(name)
}

// Update overwrites every descriptor fed by the reading's frame kind.
//
// When any matching descriptor addresses data the reading does not contain,
// Update returns an ErrDecodeRange error and leaves the table unchanged.
func (t *Table) Update(r *protocol.Reading) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.current.Load()
	vals := make([]Value, len(prev.vals))
	copy(vals, prev.vals)
	now := t.now()

	for i, d := range t.descs {
		if d.Frame != r.Kind {
			continue
		}
		v, err := extract(d, r)
		if err != nil {
			return err
		}
		v.UpdatedAt = now
		vals[i] = v
	}

	t.current.Store(&Snapshot{
		Seq:   prev.Seq + 1,
		Taken: now,
		descs: t.descs,
		vals:  vals,
		index: t.index,
	})
	return nil
}

func extract(d Descriptor, r *protocol.Reading) (Value, error) {
	v := Value{Kind: d.Kind, Valid: true}
	switch d.Kind {
	case KindTemperature:
		if d.Index >= len(r.Temperatures) {
			return Value{}, protocol.NewDecodeRangeError(r.Kind,
				fmt.Sprintf("sensor %q slot %d", d.Name, d.Index), len(r.Temperatures), d.Index+1)
		}
		v.Temperature = r.Temperatures[d.Index]
	case KindFlag:
		on, err := r.Flag(d.Index)
		if err != nil {
			return Value{}, fmt.Errorf("sensor %q: %w", d.Name, err)
		}
		v.Flag = on
	case KindRaw:
		v.Raw = make([]byte, len(r.Raw))
		copy(v.Raw, r.Raw)
	}
	return v, nil
}
