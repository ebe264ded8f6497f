package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/transport"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "easyfire") {
		t.Errorf("GetConfigDir() = %v, should contain 'easyfire'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	default:
		if configDir != filepath.Join("/tmp/xdg", "easyfire") {
			t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME/easyfire", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Transport.Mode != transport.ModeTCP || cfg.Transport.Address != "10.0.2.30:23" {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if cfg.Protocol.SenseLengthOffset != protocol.DefaultSenseLengthOffset {
		t.Errorf("SenseLengthOffset = %d", cfg.Protocol.SenseLengthOffset)
	}
	if cfg.Protocol.CaptureBytes != 1024 {
		t.Errorf("CaptureBytes = %d, want 1024", cfg.Protocol.CaptureBytes)
	}
	if len(cfg.Sensors) != len(sensor.DefaultDescriptors()) {
		t.Errorf("got %d sensors", len(cfg.Sensors))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Version != CurrentVersion || cfg.Server.Listen != ":8080" {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
log_level: debug
transport:
  mode: serial
  device: /dev/ttyS1
  baud: 9600
  read_timeout: 2s
  reconnect_delay: 5s
protocol:
  sense_length_offset: 0
sensors:
  - {index: 0, name: Flow, kind: temperature}
  - {index: 18, name: Pump, kind: flag}
  - {index: 3, name: Raw Control, kind: raw, frame: control}
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	tc := cfg.Transport
	if tc.Mode != transport.ModeSerial || tc.Device != "/dev/ttyS1" || tc.Baud != 9600 {
		t.Errorf("Transport = %+v", tc)
	}
	if tc.ReadTimeout != 2*time.Second || tc.ReconnectDelay != 5*time.Second {
		t.Errorf("timeouts = %v/%v", tc.ReadTimeout, tc.ReconnectDelay)
	}
	// Keys absent from the file keep their defaults
	if tc.DialTimeout != transport.DefaultDialTimeout {
		t.Errorf("DialTimeout = %v, want default", tc.DialTimeout)
	}
	if cfg.Protocol.SenseLengthOffset != 0 {
		t.Errorf("SenseLengthOffset = %d, want 0", cfg.Protocol.SenseLengthOffset)
	}
	if cfg.Protocol.CaptureBytes != transport.DefaultCaptureSize {
		t.Errorf("CaptureBytes = %d, want default", cfg.Protocol.CaptureBytes)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}

	if len(cfg.Sensors) != 3 {
		t.Fatalf("got %d sensors, want 3", len(cfg.Sensors))
	}
	if s := cfg.Sensors[1]; s.Kind != sensor.KindFlag || s.Index != 18 {
		t.Errorf("Sensors[1] = %+v", s)
	}
	if s := cfg.Sensors[2]; s.Kind != sensor.KindRaw || s.Frame != protocol.FrameControl {
		t.Errorf("Sensors[2] = %+v", s)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"bad yaml", "version: [", "failed to parse"},
		{"wrong version", "version: 2\n", "version"},
		{"bad log level", "version: 1\nlog_level: loud\n", "log_level"},
		{"bad mode", "version: 1\ntransport: {mode: carrier-pigeon}\n", "transport"},
		{"bad address", "version: 1\ntransport: {mode: tcp, address: nowhere}\n", "transport.address"},
		{"negative offset", "version: 1\nprotocol: {sense_length_offset: -1}\n", "protocol.sense_length_offset"},
		{"bad listen", "version: 1\nserver: {listen: '8080'}\n", "server.listen"},
		{"duplicate sensor", "version: 1\nsensors:\n  - {index: 0, name: A, kind: temperature}\n  - {index: 1, name: A, kind: temperature}\n", "sensors"},
		{"flag out of range", "version: 1\nsensors:\n  - {index: 200, name: A, kind: flag}\n", "sensors"},
		{"unknown kind", "version: 1\nsensors:\n  - {index: 0, name: A, kind: pressure}\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Transport.ReconnectDelay = 3 * time.Second
	cfg.Server.Instance = "cellar"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# easyfire bridge configuration") {
		t.Error("saved file has no header")
	}
	if !strings.Contains(string(data), "reconnect_delay: 3s") {
		t.Errorf("durations not written as text:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Instance != "cellar" || loaded.Transport.ReconnectDelay != 3*time.Second {
		t.Errorf("Load() = %+v", loaded)
	}
	if len(loaded.Sensors) != len(cfg.Sensors) {
		t.Fatalf("got %d sensors, want %d", len(loaded.Sensors), len(cfg.Sensors))
	}
	for i := range cfg.Sensors {
		if loaded.Sensors[i] != cfg.Sensors[i] {
			t.Errorf("Sensors[%d] = %+v, want %+v", i, loaded.Sensors[i], cfg.Sensors[i])
		}
	}
}

func TestReaderOptions(t *testing.T) {
	cfg := Default()
	cfg.Protocol.SenseLengthOffset = 0

	// Length byte 0 with offset 0 means an empty payload
	frame := []byte{0x02, 0x02, 0x00, 0x10, 0x01, protocol.SenseChecksum(0x00, 0x01, nil)}

	r := protocol.NewReader(bytes.NewReader(frame), cfg.ReaderOptions()...)
	got, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if got.Kind != protocol.FrameSense || len(got.Payload) != 0 {
		t.Errorf("frame = %+v", got)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	userPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	prevSystem := systemConfigPath
	systemConfigPath = filepath.Join(dir, "etc", "config.yaml")
	t.Cleanup(func() { systemConfigPath = prevSystem })

	t.Run("explicit path", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/from/env.yaml")
		if got, _ := ResolvePath("/explicit.yaml"); got != "/explicit.yaml" {
			t.Errorf("ResolvePath() = %q", got)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/from/env.yaml")
		if got, _ := ResolvePath(""); got != "/from/env.yaml" {
			t.Errorf("ResolvePath() = %q", got)
		}
	})

	t.Run("user default", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if got, _ := ResolvePath(""); got != userPath {
			t.Errorf("ResolvePath() = %q, want %q", got, userPath)
		}
	})

	if runtime.GOOS == "windows" {
		return
	}
	t.Run("system fallback", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if err := os.MkdirAll(filepath.Dir(systemConfigPath), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(systemConfigPath, []byte("version: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if got, _ := ResolvePath(""); got != systemConfigPath {
			t.Errorf("ResolvePath() = %q, want system path", got)
		}
	})
}
