package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// TCPSource reads from a serial-to-TCP adapter.
type TCPSource struct {
	conn        net.Conn
	r           *bufio.Reader
	readTimeout time.Duration
}

// DialTCP connects to address. A non-zero readTimeout makes ReadByte fail
// when the adapter stays silent for that long.
func DialTCP(ctx context.Context, address string, dialTimeout, readTimeout time.Duration) (*TCPSource, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return NewTCPSource(conn, readTimeout), nil
}

// NewTCPSource wraps an established connection
func NewTCPSource(conn net.Conn, readTimeout time.Duration) *TCPSource {
	return &TCPSource{
		conn:        conn,
		r:           bufio.NewReader(conn),
		readTimeout: readTimeout,
	}
}

// ReadByte implements io.ByteReader
func (s *TCPSource) ReadByte() (byte, error) {
	if s.readTimeout > 0 && s.r.Buffered() == 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return 0, err
		}
	}
	return s.r.ReadByte()
}

// Close closes the connection, unblocking any pending ReadByte
func (s *TCPSource) Close() error {
	return s.conn.Close()
}

// RemoteAddr returns the adapter's address
func (s *TCPSource) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}
