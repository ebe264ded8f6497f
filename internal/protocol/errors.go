package protocol

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a protocol error
type ErrorType int

const (
	// ErrTypeFramingDesync indicates a byte that violated the expected transition.
	// The reader recovers by returning to WAITING.
	ErrTypeFramingDesync ErrorType = iota
	// ErrTypeChecksumMismatch indicates a complete frame whose checksum did not match
	ErrTypeChecksumMismatch
	// ErrTypeTransport indicates the byte source failed or was closed
	ErrTypeTransport
	// ErrTypeDecodeRange indicates a payload too short for the fixed offsets
	ErrTypeDecodeRange
)

// Sentinels for errors.Is. A *ProtocolError matches the sentinel of its Type.
var (
	ErrFramingDesync    = errors.New("framing desync")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrTransport        = errors.New("transport error")
	ErrDecodeRange      = errors.New("decode range error")
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeFramingDesync:
		return "Framing Desync"
	case ErrTypeChecksumMismatch:
		return "Checksum Mismatch"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeDecodeRange:
		return "Decode Range Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

func (et ErrorType) sentinel() error {
	switch et {
	case ErrTypeFramingDesync:
		return ErrFramingDesync
	case ErrTypeChecksumMismatch:
		return ErrChecksumMismatch
	case ErrTypeTransport:
		return ErrTransport
	case ErrTypeDecodeRange:
		return ErrDecodeRange
	default:
		return nil
	}
}

// ProtocolError describes a failure while reading or decoding a frame
type ProtocolError struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable error message
	Err     error     // Underlying error (transport only)

	Kind     FrameKind // Frame kind (checksum and decode errors)
	State    string    // Reader state at the offending byte (desync only)
	Got      byte      // Offending byte (desync only)
	Received byte      // Checksum byte from the wire
	Computed byte      // Checksum computed over the frame
	Length   int       // Available bytes (decode range only)
	Need     int       // Required bytes (decode range only)

	// Fatal is true when the current read attempt cannot continue
	Fatal bool
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Type
func (e *ProtocolError) Is(target error) bool {
	s := e.Type.sentinel()
	return s != nil && target == s
}

func newDesyncError(state string, got byte) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeFramingDesync,
		Message: fmt.Sprintf("unexpected byte 0x%02x in state %s", got, state),
		State:   state,
		Got:     got,
	}
}

func newChecksumError(kind FrameKind, received, computed byte) *ProtocolError {
	return &ProtocolError{
		Type:     ErrTypeChecksumMismatch,
		Message:  fmt.Sprintf("%s frame checksum 0x%02x, computed 0x%02x", kind, received, computed),
		Kind:     kind,
		Received: received,
		Computed: computed,
	}
}

func newTransportError(err error) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeTransport,
		Message: "failed to read byte",
		Err:     err,
		Fatal:   true,
	}
}

func newDecodeRangeError(kind FrameKind, what string, length, need int) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeDecodeRange,
		Message: fmt.Sprintf("%s: have %d bytes, need %d", what, length, need),
		Kind:    kind,
		Length:  length,
		Need:    need,
	}
}

// NewDecodeRangeError reports data too short for the requested offset.
// Exported for the sensor table, which validates descriptor indices against a Reading.
func NewDecodeRangeError(kind FrameKind, what string, length, need int) *ProtocolError {
	return newDecodeRangeError(kind, what, length, need)
}

// TypeOf returns the ErrorType of the first *ProtocolError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// IsFatal reports whether err ends the current read attempt.
// Errors that are not protocol errors are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Fatal
	}
	return true
}
