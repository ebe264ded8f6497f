// Easyfire-server bridges a KWB Easyfire heating controller to the network.
//
// It reads the controller's byte stream over a serial-to-ethernet adapter or
// a local serial port, decodes Sense and Control frames into a sensor table,
// and serves the table over HTTP, WebSocket and Prometheus. The bridge
// advertises itself over mDNS so easyfire-cli can find it.
//
// Usage:
//
//	easyfire-server serve [flags]
//
// See 'easyfire-server serve --help' for available options.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/easyfire/internal/config"
	"github.com/muurk/easyfire/internal/discovery"
	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/metrics"
	"github.com/muurk/easyfire/internal/runner"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/server"
	"github.com/muurk/easyfire/internal/transport"
	"github.com/muurk/easyfire/internal/version"
)

// shutdownTimeout bounds the graceful shutdown of server and runner
const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "easyfire-server",
	Short: "KWB Easyfire telemetry bridge",
	Long: `A bridge between a KWB Easyfire heating controller and the network.

The server reads the controller's serial byte stream, either through a
serial-to-ethernet adapter (tcp mode) or a local serial port (serial mode),
and publishes the decoded temperatures and control flags over HTTP, a
WebSocket stream and a Prometheus endpoint.

For discovery, dashboards and offline analysis, use the separate 'easyfire-cli' utility.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command flags
var (
	configPath     string
	logLevel       string
	mode           string
	address        string
	device         string
	baud           int
	listen         string
	reconnectDelay time.Duration
	lengthOffset   int
	noAdvertise    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Connect to the controller and serve the sensor table.

Settings are read from the config file (see 'easyfire-cli config path') and
can be overridden with flags. A missing config file means defaults: tcp mode
against 10.0.2.30:23 and the HTTP server on :8080.

Endpoints:
  GET /api/sensors      current snapshot as JSON
  GET /api/descriptors  configured sensors
  GET /api/status       runner state and frame counters
  GET /healthz          200 while the read loop runs
  GET /metrics          Prometheus metrics
  GET /ws               WebSocket snapshot stream`,
	Example: `  # Start with the config file (or defaults)
  easyfire-server serve

  # Read from a serial-to-ethernet adapter and reconnect when it drops
  easyfire-server serve --address 10.0.2.30:23 --reconnect-delay 5s

  # Read from a local serial port
  easyfire-server serve --mode serial --device /dev/ttyUSB0 --baud 19200

  # Point at the simulator with debug logging
  easyfire-server serve --address 127.0.0.1:2323 --log-level debug`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

// addServeFlags binds the serve flags to cmd
func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to the config file (default: OS config dir)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&mode, "mode", "", "Transport mode (tcp, serial)")
	f.StringVar(&address, "address", "", "Adapter address for tcp mode (host:port)")
	f.StringVar(&device, "device", "", "Serial device for serial mode")
	f.IntVar(&baud, "baud", 0, "Baud rate for serial mode")
	f.StringVar(&listen, "listen", "", "HTTP listen address")
	f.DurationVar(&reconnectDelay, "reconnect-delay", 0, "Delay before reconnecting after a transport error (0 = exit)")
	f.IntVar(&lengthOffset, "length-offset", 0, "Added to the Sense length byte to get the payload size")
	f.BoolVar(&noAdvertise, "no-advertise", false, "Do not advertise the bridge over mDNS")
}

// applyFlags overrides cfg with every flag set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if f.Changed("mode") {
		cfg.Transport.Mode = mode
	}
	if f.Changed("address") {
		cfg.Transport.Address = address
	}
	if f.Changed("device") {
		cfg.Transport.Device = device
	}
	if f.Changed("baud") {
		cfg.Transport.Baud = baud
	}
	if f.Changed("listen") {
		cfg.Server.Listen = listen
	}
	if f.Changed("reconnect-delay") {
		cfg.Transport.ReconnectDelay = reconnectDelay
	}
	if f.Changed("length-offset") {
		cfg.Protocol.SenseLengthOffset = lengthOffset
	}
	if noAdvertise {
		cfg.Server.Advertise = false
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The bridge logs at info unless configured otherwise
	level := cfg.LogLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = "info"
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}
	defer logging.Sync()

	table, err := sensor.NewTable(cfg.Sensors)
	if err != nil {
		return fmt.Errorf("invalid sensors: %w", err)
	}

	registry := metrics.NewRegistry()
	protocolMetrics := metrics.NewProtocolMetrics(registry)
	registry.MustRegister(metrics.NewSensorCollector(table))

	srv := server.New(&server.Config{Listen: cfg.Server.Listen}, table, nil, registry)

	tc := cfg.Transport
	run, err := runner.New(runner.Config{
		Open: func(ctx context.Context) (transport.ByteSource, error) {
			return transport.Open(ctx, tc)
		},
		Table:          table,
		Source:         tc.String(),
		ReaderOptions:  cfg.ReaderOptions(),
		CaptureSize:    cfg.Protocol.CaptureBytes,
		ReconnectDelay: tc.ReconnectDelay,
		Observers:      []runner.Observer{protocolMetrics, srv.Hub()},
	})
	if err != nil {
		return err
	}
	srv.SetStatus(run)

	logging.Info("Starting easyfire bridge",
		zap.String("version", version.Version),
		zap.String("source", tc.String()),
		zap.Int("sensors", len(cfg.Sensors)),
		zap.Int("sense_length_offset", cfg.Protocol.SenseLengthOffset),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run.Start(ctx); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		_ = run.Shutdown(context.Background())
		return err
	}

	var ad *discovery.Advertisement
	if cfg.Server.Advertise {
		txt := discovery.TXTRecords(version.Version, tc.Mode, server.WebSocketPath)
		ad, err = discovery.Advertise(cfg.Server.Instance, srv.Port(), txt)
		if err != nil {
			logging.Warn("mDNS advertisement disabled", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping bridge...")
	case <-run.Done():
		logging.Warn("Read loop ended", zap.Error(run.Err()))
	}

	ad.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := run.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() == nil {
		errs = append(errs, run.Err())
	}
	return errors.Join(errs...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("easyfire-server %s\n", version.Full())
	},
}
