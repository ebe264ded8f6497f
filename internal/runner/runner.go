package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/transport"
)

// ErrAlreadyRunning is returned by Start on a running Runner
var ErrAlreadyRunning = errors.New("runner already running")

// Opener connects to the byte source. It is called once by Start and again
// for every reconnect.
type Opener func(ctx context.Context) (transport.ByteSource, error)

// Config holds the runner configuration
type Config struct {
	Open           Opener
	Table          *sensor.Table
	Source         string                  // Description of the source for logs and status
	ReaderOptions  []protocol.ReaderOption // e.g. protocol.WithSenseLengthOffset
	CaptureSize    int                     // Bytes kept by the capture ring
	ReconnectDelay time.Duration           // 0 ends the run on the first transport error
	Observers      []Observer
}

// Stats counts read loop outcomes
type Stats struct {
	Frames         uint64    `json:"frames"`
	SenseFrames    uint64    `json:"sense_frames"`
	ControlFrames  uint64    `json:"control_frames"`
	ChecksumErrors uint64    `json:"checksum_errors"`
	DecodeErrors   uint64    `json:"decode_errors"`
	Desyncs        uint64    `json:"desyncs"`
	Reconnects     uint64    `json:"reconnects"`
	LastFrame      time.Time `json:"last_frame,omitempty"`
}

// Status is a point-in-time view of the runner for the status endpoint
type Status struct {
	Running       bool   `json:"running"`
	Source        string `json:"source"`
	Error         string `json:"error,omitempty"`
	CapturedBytes int    `json:"captured_bytes"` // Recent input held for the shutdown dump
	Stats         Stats  `json:"stats"`
}

// Runner owns one byte source and drives read, decode and table update on a
// single worker goroutine. A Runner runs once; create a new one to restart.
type Runner struct {
	cfg     Config
	capture *transport.Capture
	reader  *protocol.Reader

	running  atomic.Bool
	stopping atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error

	frames, sense, control   atomic.Uint64
	checksumErrs, decodeErrs atomic.Uint64
	desyncs, reconnects      atomic.Uint64
	lastFrame                atomic.Int64 // Unix nanoseconds
}

// New creates a Runner. It does not connect until Start.
func New(cfg Config) (*Runner, error) {
	if cfg.Open == nil {
		return nil, fmt.Errorf("runner: Open is required")
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("runner: Table is required")
	}
	return &Runner{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start connects and launches the worker. Cancelling ctx stops the worker
// and closes the source.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	src, err := r.cfg.Open(ctx)
	if err != nil {
		r.running.Store(false)
		return fmt.Errorf("failed to open %s: %w", r.cfg.Source, err)
	}
	logging.LogConnection(r.cfg.Source, "source_opened")

	capture := transport.NewCapture(src, r.cfg.CaptureSize)
	r.mu.Lock()
	r.capture = capture
	r.mu.Unlock()
	opts := append([]protocol.ReaderOption{}, r.cfg.ReaderOptions...)
	opts = append(opts, protocol.WithDesyncHook(r.onDesync))
	r.reader = protocol.NewReader(r.capture, opts...)

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
			r.capture.Close()
		case <-r.done:
		}
	}()

	go r.loop(ctx)
	return nil
}

// Run starts the runner and blocks until it stops, returning Err.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-r.done
	return r.Err()
}

// Stop asks the worker to exit before reading the next frame. It does not
// block and does not interrupt a pending read; Shutdown does.
func (r *Runner) Stop() {
	r.stopping.Store(true)
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Shutdown stops the worker, closes the source, waits for the worker to
// exit, then flushes the capture ring to the debug log and syncs the logger.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.Stop()
	if r.capture == nil {
		return nil
	}
	if err := r.capture.Close(); err != nil {
		logging.Debug("Error closing source", zap.Error(err))
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return fmt.Errorf("runner did not stop: %w", ctx.Err())
	}

	logging.LogCapture("Capture buffer", r.capture.Drain())
	logging.Sync()
	return nil
}

// IsRunning reports whether the worker is active
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Done is closed when the worker exits
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Err returns the transport error that ended the run, or nil after a clean stop
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stats returns the current counters
func (r *Runner) Stats() Stats {
	s := Stats{
		Frames:         r.frames.Load(),
		SenseFrames:    r.sense.Load(),
		ControlFrames:  r.control.Load(),
		ChecksumErrors: r.checksumErrs.Load(),
		DecodeErrors:   r.decodeErrs.Load(),
		Desyncs:        r.desyncs.Load(),
		Reconnects:     r.reconnects.Load(),
	}
	if ns := r.lastFrame.Load(); ns != 0 {
		s.LastFrame = time.Unix(0, ns)
	}
	return s
}

// Status returns the runner state for reporting
func (r *Runner) Status() Status {
	st := Status{
		Running: r.IsRunning(),
		Source:  r.cfg.Source,
		Stats:   r.Stats(),
	}
	if err := r.Err(); err != nil {
		st.Error = err.Error()
	}
	r.mu.Lock()
	capture := r.capture
	r.mu.Unlock()
	if capture != nil {
		st.CapturedBytes = capture.Len()
	}
	return st
}

func (r *Runner) loop(ctx context.Context) {
	defer func() {
		r.capture.Close()
		r.running.Store(false)
		close(r.done)
	}()

	for !r.stopping.Load() {
		frame, err := r.reader.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrChecksumMismatch) {
				r.checksumErrs.Add(1)
				logging.LogFrame(frame.Kind.String(), frame.Counter, len(frame.Payload), frame.ReceivedChecksum, frame.ComputedChecksum)
				r.rejected(frame, err)
				continue
			}
			if r.stopping.Load() {
				return
			}
			if !r.reconnect(ctx, err) {
				return
			}
			continue
		}

		r.handle(frame)
	}
}

func (r *Runner) handle(frame *protocol.Frame) {
	logging.LogFrame(frame.Kind.String(), frame.Counter, len(frame.Payload), frame.ReceivedChecksum, frame.ComputedChecksum)

	reading, err := protocol.Decode(frame)
	if err == nil {
		if frame.Kind == protocol.FrameControl {
			logging.LogControlBits(frame.Payload)
		}
		err = r.cfg.Table.Update(reading)
	}
	if err != nil {
		r.decodeErrs.Add(1)
		logging.Warn("Failed to decode frame",
			zap.String("kind", frame.Kind.String()),
			zap.Uint8("counter", frame.Counter),
			zap.Error(err),
		)
		r.rejected(frame, err)
		return
	}

	r.frames.Add(1)
	if frame.Kind == protocol.FrameSense {
		r.sense.Add(1)
	} else {
		r.control.Add(1)
	}
	r.lastFrame.Store(time.Now().UnixNano())

	snap := r.cfg.Table.Snapshot()
	for _, o := range r.cfg.Observers {
		o.FrameDecoded(frame, reading, snap)
	}
}

func (r *Runner) rejected(frame *protocol.Frame, err error) {
	for _, o := range r.cfg.Observers {
		o.FrameRejected(frame, err)
	}
}

func (r *Runner) onDesync(err *protocol.ProtocolError) {
	n := r.desyncs.Add(1)
	logging.LogDesync(err.State, err.Got, n)
	for _, o := range r.cfg.Observers {
		o.Desync(err)
	}
}

// reconnect handles a transport error. It returns false when the run is over.
func (r *Runner) reconnect(ctx context.Context, cause error) bool {
	logging.Error("Transport failed",
		zap.String("source", r.cfg.Source),
		zap.Error(cause),
	)
	for _, o := range r.cfg.Observers {
		o.TransportFailed(cause)
	}

	if r.cfg.ReconnectDelay <= 0 {
		r.setErr(cause)
		return false
	}
	r.capture.Close()

	for {
		select {
		case <-r.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(r.cfg.ReconnectDelay):
		}

		src, err := r.cfg.Open(ctx)
		if err != nil {
			logging.Warn("Reconnect failed",
				zap.String("source", r.cfg.Source),
				zap.Duration("retry_in", r.cfg.ReconnectDelay),
				zap.Error(err),
			)
			continue
		}
		if r.stopping.Load() {
			src.Close()
			return false
		}

		r.capture.Rebind(src)
		r.reconnects.Add(1)
		logging.LogConnection(r.cfg.Source, "source_reopened")
		return true
	}
}

func (r *Runner) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}
