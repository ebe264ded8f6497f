package transport

import "sync"

// DefaultCaptureSize is the number of recent input bytes kept for diagnostics
const DefaultCaptureSize = 1024

// Capture records the most recent bytes read from a ByteSource.
type Capture struct {
	src ByteSource

	mu   sync.Mutex
	buf  []byte
	next int
	full bool
}

// NewCapture wraps src, keeping the last size bytes. size <= 0 uses DefaultCaptureSize.
func NewCapture(src ByteSource, size int) *Capture {
	if size <= 0 {
		size = DefaultCaptureSize
	}
	return &Capture{src: src, buf: make([]byte, size)}
}

// Rebind swaps the wrapped source, keeping the recorded bytes.
// Used when a dropped connection is re-established.
func (c *Capture) Rebind(src ByteSource) {
	c.mu.Lock()
	c.src = src
	c.mu.Unlock()
}

// ReadByte reads from the wrapped source and records the byte
func (c *Capture) ReadByte() (byte, error) {
	c.mu.Lock()
	src := c.src
	c.mu.Unlock()

	b, err := src.ReadByte()
	if err != nil {
		return b, err
	}
	c.mu.Lock()
	c.buf[c.next] = b
	c.next++
	if c.next == len(c.buf) {
		c.next = 0
		c.full = true
	}
	c.mu.Unlock()
	return b, nil
}

// Close closes the wrapped source. Recorded bytes remain available to Drain.
func (c *Capture) Close() error {
	c.mu.Lock()
	src := c.src
	c.mu.Unlock()
	return src.Close()
}

// Len returns the number of bytes currently recorded
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return len(c.buf)
	}
	return c.next
}

// Drain returns the recorded bytes oldest first and empties the buffer
func (c *Capture) Drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []byte
	if c.full {
		out = make([]byte, 0, len(c.buf))
		out = append(out, c.buf[c.next:]...)
		out = append(out, c.buf[:c.next]...)
	} else {
		out = make([]byte, c.next)
		copy(out, c.buf[:c.next])
	}
	c.next = 0
	c.full = false
	return out
}
