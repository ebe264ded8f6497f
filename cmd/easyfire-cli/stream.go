package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/server"
	"github.com/muurk/easyfire/internal/simulator"
	"github.com/muurk/easyfire/internal/transport"
	"github.com/muurk/easyfire/internal/ui"
)

// Stream command flags
var (
	dumpCount    int
	showTable    bool
	decodeOffset int
	simListen    string
	simInterval  time.Duration
	simNoise     int
	simSlots     int
	simOffset    int
	simSeed      uint64
	simPins      []string
)

func init() {
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(simulateCmd)
}

// dumpCmd prints frames read directly from the controller
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print frames read from the controller",
	Long: `Open the configured transport and print every frame as it arrives.

Each frame is shown with its counter, payload length and checksum, followed
by its temperatures (Sense) or the bits of the first control bytes
(Control). With --table the decoded sensor table is printed after each
frame instead.

Transport settings come from the config file and can be overridden with
flags.`,
	Example: `  # Dump from the configured adapter until interrupted
  easyfire-cli dump

  # Print 10 frames from a serial port
  easyfire-cli dump --mode serial --device /dev/ttyUSB0 --count 10

  # Dump from the simulator and show the sensor table
  easyfire-cli dump --address 127.0.0.1:2323 --table`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().IntVar(&dumpCount, "count", 0, "Stop after this many frames (0 = until interrupted)")
	dumpCmd.Flags().BoolVar(&showTable, "table", false, "Print the sensor table after each frame")
	addTransportFlags(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	table, err := sensor.NewTable(cfg.Sensors)
	if err != nil {
		return fmt.Errorf("invalid sensors: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := transport.Open(ctx, cfg.Transport)
	if err != nil {
		return err
	}
	defer src.Close()
	// Closing the source unblocks ReadFrame on interrupt
	release := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer release()

	printer := ui.NewPrinter(os.Stdout)
	printer.PrintHeader("Frame Dump", "easyfire-cli dump", map[string]string{
		"source":        cfg.Transport.String(),
		"length offset": strconv.Itoa(cfg.Protocol.SenseLengthOffset),
	})

	var reader *protocol.Reader
	opts := append(cfg.ReaderOptions(), protocol.WithDesyncHook(func(e *protocol.ProtocolError) {
		logging.LogDesync(e.State, e.Got, reader.Desyncs())
	}))
	reader = protocol.NewReader(src, opts...)

	frames := 0
	for dumpCount == 0 || frames < dumpCount {
		frame, err := reader.ReadFrame()
		if err != nil && protocol.IsFatal(err) {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		frames++

		var reading *protocol.Reading
		var decodeErr error
		if frame.Valid() {
			reading, decodeErr = protocol.Decode(frame)
			if decodeErr == nil {
				if err := table.Update(reading); err != nil {
					decodeErr = err
				}
			}
		}
		printer.PrintFrame(frame, reading, decodeErr)
		if showTable && reading != nil {
			printer.PrintSnapshot(server.NewSnapshotMessage(table.Snapshot()))
		}
	}

	printer.Newline()
	printer.PrintSuccess("Dump finished", map[string]string{
		"frames":  strconv.Itoa(frames),
		"desyncs": strconv.FormatUint(reader.Desyncs(), 10),
	})
	return nil
}

// decodeCmd analyzes a captured byte stream
var decodeCmd = &cobra.Command{
	Use:   "decode [file|-]",
	Short: "Decode a captured byte stream",
	Long: `Decode a capture of the controller's byte stream offline.

The input is either raw binary or hex text (pairs of hex digits separated
by whitespace, commas or colons, with optional 0x prefixes). The format is
detected automatically. Without an argument, or with -, the capture is read
from stdin.

Every recognized frame is printed, including frames with a bad checksum,
followed by a summary of frame counts, checksum errors and desyncs.`,
	Example: `  # Decode a binary capture
  easyfire-cli decode capture.bin

  # Decode hex pasted from a log line
  echo "02 15 11 07 00 00 04 00 00 00 00 00 00 00 00 00 00 00 00 00 0e" | easyfire-cli decode

  # Try a different Sense length offset
  easyfire-cli decode capture.bin --length-offset 0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().IntVar(&decodeOffset, "length-offset", protocol.DefaultSenseLengthOffset, "Added to the Sense length byte to get the payload size")
}

func runDecode(cmd *cobra.Command, args []string) error {
	name := "-"
	if len(args) == 1 {
		name = args[0]
	}

	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}

	stream := protocol.ParseDump(data)
	analysis := protocol.Analyze(stream, protocol.WithSenseLengthOffset(decodeOffset))

	printer := ui.NewPrinter(os.Stdout)
	for _, f := range analysis.Frames {
		var reading *protocol.Reading
		var decodeErr error
		if f.Valid() {
			reading, decodeErr = protocol.Decode(f)
		}
		printer.PrintFrame(f, reading, decodeErr)
	}
	printer.Newline()

	summary := map[string]string{
		"bytes":           strconv.Itoa(len(stream)),
		"frames":          strconv.Itoa(len(analysis.Frames)),
		"sense":           strconv.Itoa(analysis.Sense),
		"control":         strconv.Itoa(analysis.Control),
		"checksum errors": strconv.Itoa(analysis.ChecksumErrors),
		"desyncs":         strconv.FormatUint(analysis.Desyncs, 10),
	}
	if analysis.Incomplete {
		summary["incomplete"] = "capture ends inside a frame"
	}

	if len(analysis.Frames) == 0 {
		printer.PrintError("No frames found", errors.New("no complete frame in the capture"), []string{
			"Check that the capture starts before a 0x02 preamble",
			"Try --length-offset 0 if Sense frames are cut short",
		})
		return nil
	}
	printer.PrintSuccess("Capture decoded", summary)
	return nil
}

// simulateCmd serves a synthetic controller stream over TCP
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a controller behind a serial-to-ethernet adapter",
	Long: `Listen on TCP and stream synthetic Sense and Control frames to every
client, the way a serial-to-ethernet adapter in front of the controller
would.

Temperatures drift slowly around plausible values and the Return Mixer and
Resupply flags toggle periodically. Noise bytes between frames exercise
resynchronization.`,
	Example: `  # Simulate on the default port
  easyfire-cli simulate

  # Point a bridge at it
  easyfire-server serve --address 127.0.0.1:2323

  # Faster frames, no noise
  easyfire-cli simulate --interval 200ms --noise 0

  # Hold Outside at -12.3 and Flow at 75.0
  easyfire-cli simulate --pin 6=-12.3 --pin 0=75`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simListen, "listen", simulator.DefaultListen, "TCP listen address")
	f.DurationVar(&simInterval, "interval", simulator.DefaultInterval, "Time between frame pairs")
	f.IntVar(&simNoise, "noise", simulator.DefaultNoise, "Maximum noise bytes before each frame pair")
	f.IntVar(&simSlots, "slots", simulator.DefaultSlots, "Temperature slots per Sense frame")
	f.IntVar(&simOffset, "length-offset", protocol.DefaultSenseLengthOffset, "Sense length offset to encode with")
	f.Uint64Var(&simSeed, "seed", 0, "Noise seed (0 = time based)")
	f.StringArrayVar(&simPins, "pin", nil, "Hold a temperature slot at a value, as slot=celsius (repeatable)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	pins := make(map[int]protocol.Temperature, len(simPins))
	for _, p := range simPins {
		slot, t, err := simulator.ParsePin(p)
		if err != nil {
			return err
		}
		pins[slot] = t
	}

	seed := simSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	sim := simulator.New(simulator.Config{
		Listen:       simListen,
		Interval:     simInterval,
		Slots:        simSlots,
		Noise:        simNoise,
		LengthOffset: simOffset,
		Seed:         seed,
		Pins:         pins,
	})
	if err := sim.Start(); err != nil {
		return err
	}
	fmt.Printf("Simulator listening on %s (Ctrl+C to stop)\n", sim.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logging.Info("Stopping simulator", zap.Int("connections", sim.ActiveConnections()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sim.Shutdown(shutdownCtx)
}
