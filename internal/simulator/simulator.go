package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/protocol"
)

// Defaults for Config
const (
	DefaultListen   = ":2323"
	DefaultInterval = time.Second
	DefaultSlots    = 13
	DefaultNoise    = 4
)

// Config holds the simulator configuration
type Config struct {
	Listen       string
	Interval     time.Duration // Time between steps
	Slots        int           // Temperature slots per Sense frame
	Noise        int           // Maximum garbage bytes before each step
	LengthOffset int
	Seed         uint64
	Pins         map[int]protocol.Temperature // Slots held at a fixed value
}

// Simulator is a TCP server that speaks the controller's byte stream, like a
// serial-to-ethernet adapter would. Every connection gets its own generator.
type Simulator struct {
	config      Config
	listener    net.Listener
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]net.Conn
	quit        chan struct{}
}

// New creates a simulator. Zero fields take the defaults, except
// LengthOffset which is used as given.
func New(config Config) *Simulator {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Slots <= 0 {
		config.Slots = DefaultSlots
	}
	return &Simulator{
		config:      config,
		activeConns: make(map[string]net.Conn),
		quit:        make(chan struct{}),
	}
}

// Start listens and accepts connections in the background
func (s *Simulator) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener

	logging.Info("Simulator listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("interval", s.config.Interval),
		zap.Int("slots", s.config.Slots),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections()
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Simulator) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Simulator) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Simulator) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	gen := NewGenerator(s.config.Slots, s.config.Noise, s.config.LengthOffset, s.config.Seed)
	for slot, t := range s.config.Pins {
		gen.Pin(slot, t)
	}
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		data, err := gen.Next()
		if err != nil {
			logging.Error("Failed to build frames", zap.Error(err))
			return
		}
		if _, err := conn.Write(data); err != nil {
			logging.Debug("Write failed",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}
		logging.LogRawBytes("simulator_tx", data)

		select {
		case <-ticker.C:
		case <-s.quit:
			return
		}
	}
}

// ActiveConnections returns the number of connected clients
func (s *Simulator) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Shutdown closes the listener and every connection, then waits for the
// connection goroutines or ctx.
func (s *Simulator) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down simulator...")

	select {
	case <-s.quit:
	default:
		close(s.quit)
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("simulator shutdown: %w", ctx.Err())
	}
}
