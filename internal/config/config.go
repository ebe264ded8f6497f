package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/transport"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// Config is the bridge configuration file.
type Config struct {
	Version   int                 `yaml:"version"`
	LogLevel  string              `yaml:"log_level,omitempty"`
	Transport transport.Config    `yaml:"transport"`
	Protocol  ProtocolConfig      `yaml:"protocol"`
	Server    ServerConfig        `yaml:"server"`
	Sensors   []sensor.Descriptor `yaml:"sensors"`
}

// ProtocolConfig tunes the frame reader.
type ProtocolConfig struct {
	// SenseLengthOffset is added to the sense length byte to get the
	// payload size
	SenseLengthOffset int `yaml:"sense_length_offset"`

	// CaptureBytes is the size of the raw input capture dumped on shutdown
	CaptureBytes int `yaml:"capture_bytes"`
}

// ServerConfig configures the HTTP server and mDNS advertisement.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance,omitempty"` // mDNS instance name
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Version:   CurrentVersion,
		Transport: transport.DefaultConfig(),
		Protocol: ProtocolConfig{
			SenseLengthOffset: protocol.DefaultSenseLengthOffset,
			CaptureBytes:      transport.DefaultCaptureSize,
		},
		Server: ServerConfig{
			Listen:    ":8080",
			Advertise: true,
			Instance:  "easyfire",
		},
		Sensors: sensor.DefaultDescriptors(),
	}
}

// Load reads the configuration at path. An empty path means the default
// location; a missing file yields Default().
func Load(path string) (*Config, error) {
	path, err := ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("No config file, using defaults", zap.String("path", path))
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields absent from the file keep their defaults
	cfg := Default()
	cfg.Sensors = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Sensors == nil {
		cfg.Sensors = sensor.DefaultDescriptors()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section and names the offending field
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("version: unsupported config version %d (expected %d)", c.Version, CurrentVersion)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q (want debug, info, warn or error)", c.LogLevel)
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if c.Protocol.SenseLengthOffset < 0 {
		return fmt.Errorf("protocol.sense_length_offset: must not be negative, got %d", c.Protocol.SenseLengthOffset)
	}
	if c.Protocol.CaptureBytes < 0 {
		return fmt.Errorf("protocol.capture_bytes: must not be negative, got %d", c.Protocol.CaptureBytes)
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("server.listen: %w", err)
	}
	if _, err := sensor.NewTable(c.Sensors); err != nil {
		return fmt.Errorf("sensors: %w", err)
	}
	return nil
}

// Save writes the configuration to path, or to the default location when
// path is empty. Performs an atomic write to prevent corruption on crash.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	path, err := ResolvePath(path)
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# easyfire bridge configuration
#
# transport.mode is "tcp" (serial-to-ethernet adapter) or "serial".
# Sensor indices are temperature slots for "temperature" sensors and
# control-frame bit positions for "flag" sensors.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// ReaderOptions returns the frame reader options for this configuration
func (c *Config) ReaderOptions() []protocol.ReaderOption {
	return []protocol.ReaderOption{
		protocol.WithSenseLengthOffset(c.Protocol.SenseLengthOffset),
	}
}
