// Package transport provides the byte sources the frame reader consumes.
//
// The controller is reached either through a serial-to-TCP adapter (TCPSource)
// or a local serial port (SerialSource, via go.bug.st/serial). Both buffer
// their input and honour an optional read timeout. Capture wraps any source
// and keeps the most recent bytes for post-mortem logging.
package transport
