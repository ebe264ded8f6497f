package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// Modes
const (
	ModeTCP    = "tcp"
	ModeSerial = "serial"
)

// Defaults for the common Easyfire setups: a serial-to-Ethernet adapter on the
// controller's service port, or a USB serial cable.
const (
	DefaultAddress     = "10.0.2.30:23"
	DefaultDevice      = "/dev/ttyUSB0"
	DefaultBaud        = 19200
	DefaultDialTimeout = 10 * time.Second
)

// ErrUnknownMode is returned by Open for a mode other than tcp or serial
var ErrUnknownMode = errors.New("unknown transport mode")

// ByteSource supplies the controller's output one byte at a time.
// ReadByte may block; Close aborts a blocked ReadByte.
type ByteSource interface {
	io.ByteReader
	io.Closer
}

// Config selects and parameterizes a ByteSource.
type Config struct {
	Mode           string        `yaml:"mode"`
	Address        string        `yaml:"address,omitempty"` // host:port (tcp)
	Device         string        `yaml:"device,omitempty"`  // Device path (serial)
	Baud           int           `yaml:"baud,omitempty"`
	DialTimeout    time.Duration `yaml:"dial_timeout,omitempty"`
	ReadTimeout    time.Duration `yaml:"read_timeout,omitempty"`    // 0 blocks forever
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty"` // 0 disables reconnecting
}

// DefaultConfig returns a TCP configuration for the default adapter address
func DefaultConfig() Config {
	return Config{
		Mode:        ModeTCP,
		Address:     DefaultAddress,
		Device:      DefaultDevice,
		Baud:        DefaultBaud,
		DialTimeout: DefaultDialTimeout,
	}
}

// Validate checks the fields the selected mode needs
func (c Config) Validate() error {
	switch c.Mode {
	case ModeTCP:
		host, port, err := net.SplitHostPort(c.Address)
		if err != nil {
			return fmt.Errorf("transport.address: %w", err)
		}
		if host == "" {
			return fmt.Errorf("transport.address: missing host in %q", c.Address)
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("transport.address: invalid port %q", port)
		}
	case ModeSerial:
		if c.Device == "" {
			return fmt.Errorf("transport.device: required for serial mode")
		}
		if c.Baud <= 0 {
			return fmt.Errorf("transport.baud: must be positive, got %d", c.Baud)
		}
	default:
		return fmt.Errorf("transport.mode: %w %q (expected tcp or serial)", ErrUnknownMode, c.Mode)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.ReconnectDelay < 0 {
		return fmt.Errorf("transport: timeouts must not be negative")
	}
	return nil
}

// String describes the endpoint, e.g. tcp://10.0.2.30:23
func (c Config) String() string {
	switch c.Mode {
	case ModeTCP:
		return "tcp://" + c.Address
	case ModeSerial:
		return fmt.Sprintf("serial://%s@%d", c.Device, c.Baud)
	default:
		return c.Mode
	}
}

// Open connects to the source described by cfg.
// The context bounds connection setup only.
func Open(ctx context.Context, cfg Config) (ByteSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeTCP:
		return DialTCP(ctx, cfg.Address, cfg.DialTimeout, cfg.ReadTimeout)
	case ModeSerial:
		return OpenSerial(cfg.Device, cfg.Baud, cfg.ReadTimeout)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, cfg.Mode)
	}
}
