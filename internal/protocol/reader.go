package protocol

import (
	"io"
)

// state is the Reader's position within a frame.
type state int

const (
	stateWaiting state = iota
	statePreamble
	stateSenseLength
	stateSenseMarker
	stateSenseCounter
	stateSenseData
	stateSenseChecksum
	stateControlMarker
	stateControlCounter
	stateControlData
	stateControlChecksum
)

func (s state) String() string {
	switch s {
	case stateWaiting:
		return "WAITING"
	case statePreamble:
		return "PRE1"
	case stateSenseLength:
		return "SENSE_LEN2"
	case stateSenseMarker:
		return "SENSE_LEN_MARKER"
	case stateSenseCounter:
		return "SENSE_COUNT"
	case stateSenseData:
		return "SENSE_DATA"
	case stateSenseChecksum:
		return "SENSE_CHECKSUM"
	case stateControlMarker:
		return "CTRL_MARKER2"
	case stateControlCounter:
		return "CTRL_COUNT"
	case stateControlData:
		return "CTRL_DATA"
	case stateControlChecksum:
		return "CTRL_CHECKSUM"
	default:
		return "UNKNOWN"
	}
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithSenseLengthOffset overrides DefaultSenseLengthOffset.
func WithSenseLengthOffset(n int) ReaderOption {
	return func(r *Reader) {
		r.lengthOffset = n
	}
}

// WithDesyncHook registers a function called for every discarded partial frame.
// The hook runs on the reading goroutine and must not block.
func WithDesyncHook(fn func(*ProtocolError)) ReaderOption {
	return func(r *Reader) {
		r.onDesync = fn
	}
}

// Reader turns an unframed byte stream into Frames.
type Reader struct {
	src          io.ByteReader
	lengthOffset int
	onDesync     func(*ProtocolError)

	state     state
	sum       Checksum
	frame     *Frame
	remaining int
	desyncs   uint64
}

// NewReader creates a Reader consuming src one byte at a time.
// src may be nil when only Step is used.
func NewReader(src io.ByteReader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:          src,
		lengthOffset: DefaultSenseLengthOffset,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadFrame blocks until a complete frame has been recognized.
//
// A frame with a bad checksum is returned together with an ErrTypeChecksumMismatch
// error; the reader is already waiting for the next preamble. A source failure
// yields a fatal ErrTypeTransport error and discards any partial frame.
func (r *Reader) ReadFrame() (*Frame, error) {
	for {
		b, err := r.src.ReadByte()
		if err != nil {
			r.Reset()
			return nil, newTransportError(err)
		}
		frame, done := r.Step(b)
		if !done {
			continue
		}
		if !frame.Valid() {
			return frame, newChecksumError(frame.Kind, frame.ReceivedChecksum, frame.ComputedChecksum)
		}
		return frame, nil
	}
}

// Step advances the state machine by one byte.
// It returns the finished frame and true when b completed one; checksum
// validity is left to the caller (see Frame.Valid).
func (r *Reader) Step(b byte) (*Frame, bool) {
	switch r.state {
	case stateWaiting:
		if b == Preamble {
			r.sum.Reset(b)
			r.state = statePreamble
		}

	case statePreamble:
		switch b {
		case SenseMarker:
			r.sum.Reset(b)
			r.frame = &Frame{Kind: FrameSense}
			r.state = stateSenseLength
		case ControlMarker1:
			r.sum.Add(b)
			r.frame = &Frame{Kind: FrameControl}
			r.state = stateControlMarker
		default:
			r.desync(b)
		}

	case stateSenseLength:
		r.sum.Add(b)
		r.frame.DeclaredLength = b
		r.remaining = int(b) + r.lengthOffset
		if r.remaining < 0 {
			r.desync(b)
			break
		}
		r.state = stateSenseMarker

	case stateSenseMarker:
		if b != SenseLengthMarker {
			r.desync(b)
			break
		}
		r.sum.Add(b)
		r.state = stateSenseCounter

	case stateSenseCounter:
		r.sum.Add(b)
		r.frame.Counter = b
		r.frame.Payload = make([]byte, 0, r.remaining)
		r.state = r.dataState(stateSenseData, stateSenseChecksum)

	case stateSenseData, stateControlData:
		r.sum.Add(b)
		r.frame.Payload = append(r.frame.Payload, b)
		r.remaining--
		if r.remaining == 0 {
			if r.state == stateSenseData {
				r.state = stateSenseChecksum
			} else {
				r.state = stateControlChecksum
			}
		}

	case stateControlMarker:
		if b != ControlMarker2 {
			r.desync(b)
			break
		}
		r.sum.Add(b)
		r.state = stateControlCounter

	case stateControlCounter:
		r.sum.Add(b)
		r.frame.Counter = b
		r.remaining = ControlPayloadLength
		r.frame.Payload = make([]byte, 0, ControlPayloadLength)
		r.state = stateControlData

	case stateSenseChecksum, stateControlChecksum:
		frame := r.frame
		frame.ReceivedChecksum = b
		frame.ComputedChecksum = r.sum.Value()
		r.Reset()
		return frame, true
	}

	return nil, false
}

func (r *Reader) dataState(data, checksum state) state {
	if r.remaining == 0 {
		return checksum
	}
	return data
}

// desync is the one transition back to WAITING from inside a frame.
// The offending byte is consumed, not re-examined as a preamble.
func (r *Reader) desync(b byte) {
	err := newDesyncError(r.state.String(), b)
	r.desyncs++
	r.Reset()
	if r.onDesync != nil {
		r.onDesync(err)
	}
}

// Reset discards any partial frame and returns to WAITING.
func (r *Reader) Reset() {
	r.state = stateWaiting
	r.frame = nil
	r.remaining = 0
}

// State returns the current state name
func (r *Reader) State() string {
	return r.state.String()
}

// Desyncs returns how many partial frames have been discarded
func (r *Reader) Desyncs() uint64 {
	return r.desyncs
}

// SenseLengthOffset returns the configured length offset
func (r *Reader) SenseLengthOffset() int {
	return r.lengthOffset
}
