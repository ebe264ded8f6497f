package runner

import (
	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/sensor"
)

// Observer is notified of every outcome of the read loop.
//
// Methods run synchronously on the worker goroutine, in frame order, and
// must not block.
type Observer interface {
	// FrameDecoded is called after a frame has been applied to the table
	FrameDecoded(frame *protocol.Frame, reading *protocol.Reading, snap *sensor.Snapshot)
	// FrameRejected is called for a checksum mismatch or a decode range error
	FrameRejected(frame *protocol.Frame, err error)
	// Desync is called for every partial frame the reader discards
	Desync(err *protocol.ProtocolError)
	// TransportFailed is called when the byte source fails
	TransportFailed(err error)
}

// NopObserver implements Observer with no-ops. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) FrameDecoded(*protocol.Frame, *protocol.Reading, *sensor.Snapshot) {}
func (NopObserver) FrameRejected(*protocol.Frame, error)                              {}
func (NopObserver) Desync(*protocol.ProtocolError)                                    {}
func (NopObserver) TransportFailed(error)                                             {}
