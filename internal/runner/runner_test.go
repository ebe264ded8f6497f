package runner

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/transport"
)

// chanSource delivers bytes sent on feed. Closing feed yields io.EOF;
// Close yields net.ErrClosed.
type chanSource struct {
	feed   chan byte
	closed chan struct{}
	once   sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{feed: make(chan byte, 4096), closed: make(chan struct{})}
}

func (s *chanSource) ReadByte() (byte, error) {
	select {
	case b, ok := <-s.feed:
		if !ok {
			return 0, io.EOF
		}
		return b, nil
	case <-s.closed:
		return 0, net.ErrClosed
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *chanSource) send(data []byte) {
	for _, b := range data {
		s.feed <- b
	}
}

// recorder is an Observer that forwards events to channels.
type recorder struct {
	decoded  chan *sensor.Snapshot
	rejected chan error
	desyncs  chan *protocol.ProtocolError
	failed   chan error
}

func newRecorder() *recorder {
	return &recorder{
		decoded:  make(chan *sensor.Snapshot, 64),
		rejected: make(chan error, 64),
		desyncs:  make(chan *protocol.ProtocolError, 64),
		failed:   make(chan error, 64),
	}
}

func (r *recorder) FrameDecoded(_ *protocol.Frame, _ *protocol.Reading, snap *sensor.Snapshot) {
	r.decoded <- snap
}
func (r *recorder) FrameRejected(_ *protocol.Frame, err error) { r.rejected <- err }
func (r *recorder) Desync(err *protocol.ProtocolError)          { r.desyncs <- err }
func (r *recorder) TransportFailed(err error)                   { r.failed <- err }

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func senseFrame(t *testing.T, counter byte, temps ...protocol.Temperature) []byte {
	t.Helper()
	payload := protocol.BuildSensePayload(0x01, protocol.SenseLayout{}, temps)
	frame, err := protocol.BuildSenseFrame(counter, payload, protocol.DefaultSenseLengthOffset)
	if err != nil {
		t.Fatalf("BuildSenseFrame() error = %v", err)
	}
	return frame
}

func controlFrame(t *testing.T, counter byte, bits ...int) []byte {
	t.Helper()
	payload := make([]byte, protocol.ControlPayloadLength)
	for _, b := range bits {
		if err := protocol.SetBit(payload, b, true); err != nil {
			t.Fatalf("SetBit() error = %v", err)
		}
	}
	frame, err := protocol.BuildControlFrame(counter, payload)
	if err != nil {
		t.Fatalf("BuildControlFrame() error = %v", err)
	}
	return frame
}

func thirteen(v protocol.Temperature) []protocol.Temperature {
	temps := make([]protocol.Temperature, 13)
	for i := range temps {
		temps[i] = v + protocol.Temperature(i)
	}
	return temps
}

func newTestRunner(t *testing.T, open Opener, delay time.Duration, obs Observer) *Runner {
	t.Helper()
	table, err := sensor.NewTable(sensor.DefaultDescriptors())
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	r, err := New(Config{
		Open:           open,
		Table:          table,
		Source:         "test",
		CaptureSize:    64,
		ReconnectDelay: delay,
		Observers:      []Observer{obs},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func openOnce(src transport.ByteSource) Opener {
	return func(context.Context) (transport.ByteSource, error) { return src, nil }
}

func TestRunnerDecodesFrames(t *testing.T) {
	src := newChanSource()
	rec := newRecorder()
	r := newTestRunner(t, openOnce(src), 0, rec)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	src.send([]byte{0x55, 0xAA})
	src.send(senseFrame(t, 1, thirteen(200)...))
	src.send(controlFrame(t, 2, 17))

	wait(t, rec.decoded, "sense frame")
	snap := wait(t, rec.decoded, "control frame")

	if v, _ := snap.Lookup("Flow"); v.String() != "20.0" {
		t.Errorf("Flow = %s, want 20.0", v)
	}
	if v, _ := snap.Lookup("Stoker Channel"); v.String() != "21.2" {
		t.Errorf("Stoker Channel = %s, want 21.2", v)
	}
	if v, _ := snap.Lookup("Return Mixer"); !v.Flag {
		t.Error("Return Mixer should be set")
	}

	stats := r.Stats()
	if stats.Frames != 2 || stats.SenseFrames != 1 || stats.ControlFrames != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.LastFrame.IsZero() {
		t.Error("LastFrame not recorded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after Shutdown")
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() after Shutdown = %v, want nil", err)
	}
	if r.capture.Len() != 0 {
		t.Error("Shutdown did not drain the capture ring")
	}
}

func TestRunnerRejectsBadFrames(t *testing.T) {
	src := newChanSource()
	rec := newRecorder()
	r := newTestRunner(t, openOnce(src), 0, rec)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Shutdown(context.Background())

	corrupt := senseFrame(t, 1, thirteen(100)...)
	corrupt[len(corrupt)-1]++
	src.send(corrupt)
	if err := wait(t, rec.rejected, "checksum rejection"); !errors.Is(err, protocol.ErrChecksumMismatch) {
		t.Errorf("rejected with %v, want ErrChecksumMismatch", err)
	}

	// Valid frame with too few slots for Stoker Channel
	src.send(senseFrame(t, 2, 1, 2, 3))
	if err := wait(t, rec.rejected, "range rejection"); !errors.Is(err, protocol.ErrDecodeRange) {
		t.Errorf("rejected with %v, want ErrDecodeRange", err)
	}

	src.send([]byte{0x02, 0x07})
	if d := wait(t, rec.desyncs, "desync"); d.Got != 0x07 {
		t.Errorf("desync byte = 0x%02x, want 0x07", d.Got)
	}

	// The loop survives all of the above
	src.send(controlFrame(t, 3))
	wait(t, rec.decoded, "control frame")

	stats := r.Stats()
	if stats.ChecksumErrors != 1 || stats.DecodeErrors != 1 || stats.Desyncs != 1 || stats.Frames != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if v, _ := r.cfg.Table.Lookup("Flow"); v.Valid {
		t.Error("rejected frames updated the table")
	}
}

func TestRunnerTransportError(t *testing.T) {
	src := newChanSource()
	rec := newRecorder()
	r := newTestRunner(t, openOnce(src), 0, rec)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	close(src.feed)
	wait(t, rec.failed, "transport failure")
	wait(t, r.Done(), "worker exit")

	err := r.Err()
	if !errors.Is(err, protocol.ErrTransport) || !errors.Is(err, io.EOF) {
		t.Errorf("Err() = %v, want transport error wrapping EOF", err)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after transport failure")
	}
	if st := r.Status(); st.Running || st.Error == "" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestRunnerReconnects(t *testing.T) {
	first := newChanSource()
	second := newChanSource()
	sources := make(chan transport.ByteSource, 2)
	sources <- first
	sources <- second
	open := func(context.Context) (transport.ByteSource, error) {
		select {
		case s := <-sources:
			return s, nil
		default:
			return nil, errors.New("no more sources")
		}
	}

	rec := newRecorder()
	r := newTestRunner(t, open, 10*time.Millisecond, rec)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Shutdown(context.Background())

	close(first.feed)
	wait(t, rec.failed, "transport failure")

	second.send(controlFrame(t, 1, 25))
	snap := wait(t, rec.decoded, "frame after reconnect")
	if v, _ := snap.Lookup("Resupply"); !v.Flag {
		t.Error("Resupply should be set")
	}
	if got := r.Stats().Reconnects; got != 1 {
		t.Errorf("Reconnects = %d, want 1", got)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v while reconnecting", r.Err())
	}
}

// waitCaptured blocks until the worker has consumed n bytes
func waitCaptured(t *testing.T, r *Runner, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Status().CapturedBytes < n {
		if time.Now().After(deadline) {
			t.Fatalf("worker consumed %d bytes, want %d", r.Status().CapturedBytes, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunnerStopIsCooperative(t *testing.T) {
	t.Run("frame in flight", func(t *testing.T) {
		src := newChanSource()
		rec := newRecorder()
		r := newTestRunner(t, openOnce(src), 0, rec)
		if err := r.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		frame := controlFrame(t, 1, 17)
		src.send(frame[:4])
		waitCaptured(t, r, 4)

		r.Stop()
		select {
		case <-r.Done():
			t.Fatal("Stop() abandoned the frame in flight")
		case <-time.After(50 * time.Millisecond):
		}

		// The frame completes, then the worker exits without reading further
		src.send(frame[4:])
		snap := wait(t, rec.decoded, "in-flight frame")
		if v, _ := snap.Lookup("Return Mixer"); !v.Flag {
			t.Error("in-flight frame decoded wrongly")
		}
		wait(t, r.Done(), "worker exit")
		if r.Err() != nil {
			t.Errorf("Err() = %v after Stop", r.Err())
		}
		if got := r.Stats().Frames; got != 1 {
			t.Errorf("Frames = %d, want 1", got)
		}
	})

	t.Run("stop before start", func(t *testing.T) {
		src := newChanSource()
		r := newTestRunner(t, openOnce(src), 0, NopObserver{})
		r.Stop()
		if err := r.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		wait(t, r.Done(), "worker exit")
		if r.Err() != nil {
			t.Errorf("Err() = %v, want nil", r.Err())
		}
		if got := r.Status().CapturedBytes; got != 0 {
			t.Errorf("CapturedBytes = %d, want 0", got)
		}
	})
}

func TestRunnerStatus(t *testing.T) {
	src := newChanSource()
	rec := newRecorder()
	r := newTestRunner(t, openOnce(src), 0, rec)
	if st := r.Status(); st.Running || st.CapturedBytes != 0 || st.Source != "test" {
		t.Errorf("Status() before Start = %+v", st)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Shutdown(context.Background())

	frame := senseFrame(t, 1, thirteen(200)...)
	src.send(frame)
	wait(t, rec.decoded, "sense frame")

	st := r.Status()
	if !st.Running || st.CapturedBytes != len(frame) || st.Stats.SenseFrames != 1 {
		t.Errorf("Status() = %+v, want running with %d captured bytes", st, len(frame))
	}
}

func TestRunnerContextCancel(t *testing.T) {
	src := newChanSource()
	r := newTestRunner(t, openOnce(src), 0, NopObserver{})
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	wait(t, r.Done(), "worker exit")
	if r.Err() != nil {
		t.Errorf("Err() = %v after cancel", r.Err())
	}
}

func TestRunnerStart(t *testing.T) {
	t.Run("open failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		r := newTestRunner(t, func(context.Context) (transport.ByteSource, error) { return nil, boom }, 0, NopObserver{})
		if err := r.Start(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Start() error = %v, want %v", err, boom)
		}
		if r.IsRunning() {
			t.Error("IsRunning() = true after failed Start")
		}
	})

	t.Run("twice", func(t *testing.T) {
		r := newTestRunner(t, openOnce(newChanSource()), 0, NopObserver{})
		if err := r.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer r.Shutdown(context.Background())
		if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
		}
	})

	t.Run("missing table", func(t *testing.T) {
		if _, err := New(Config{Open: openOnce(newChanSource())}); err == nil {
			t.Error("New() without a table should fail")
		}
	})
}
