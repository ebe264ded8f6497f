package transport

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"
)

// SerialSource reads from a local serial port at 8N1.
type SerialSource struct {
	port serial.Port
	r    *bufio.Reader
}

// OpenSerial opens device at baud. A non-zero readTimeout makes ReadByte fail
// with os.ErrDeadlineExceeded when the line stays silent for that long.
func OpenSerial(device string, baud int, readTimeout time.Duration) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", device, err)
		}
	}
	return &SerialSource{
		port: port,
		r:    bufio.NewReader(timeoutReader{port}),
	}, nil
}

// ReadByte implements io.ByteReader
func (s *SerialSource) ReadByte() (byte, error) {
	return s.r.ReadByte()
}

// Close closes the port
func (s *SerialSource) Close() error {
	return s.port.Close()
}

// timeoutReader reports the port's (0, nil) timeout return as an error so
// bufio does not spin on it.
type timeoutReader struct {
	port serial.Port
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.port.Read(p)
	if n == 0 && err == nil {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}

// ListPorts returns the serial ports present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
