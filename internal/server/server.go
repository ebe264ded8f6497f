package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/metrics"
	"github.com/muurk/easyfire/internal/runner"
	"github.com/muurk/easyfire/internal/sensor"
	"github.com/muurk/easyfire/internal/version"
)

// DefaultListen is the default HTTP listen address
const DefaultListen = ":8080"

// WebSocketPath is where the snapshot stream is served
const WebSocketPath = "/ws"

// Config holds the server configuration
type Config struct {
	Listen string
}

// StatusSource reports the state of the read loop
type StatusSource interface {
	IsRunning() bool
	Status() runner.Status
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Build     version.Info  `json:"build"`
	Runner    runner.Status `json:"runner"`
	Clients   int           `json:"websocket_clients"`
	Dropped   uint64        `json:"websocket_dropped"`
	Sequence  uint64        `json:"snapshot_seq"`
	Timestamp time.Time     `json:"timestamp"`
}

// Server serves the sensor table over HTTP, WebSocket and Prometheus.
type Server struct {
	config   *Config
	table    *sensor.Table
	status   StatusSource
	hub      *Hub
	registry *prometheus.Registry

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

// New creates a Server. A nil registry gets a fresh one from metrics.NewRegistry.
func New(config *Config, table *sensor.Table, status StatusSource, registry *prometheus.Registry) *Server {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Server{
		config:   config,
		table:    table,
		status:   status,
		hub:      NewHub(table),
		registry: registry,
	}
}

// SetStatus sets the status source. Call it before Start.
func (s *Server) SetStatus(status StatusSource) {
	s.status = status
}

// Hub returns the WebSocket hub. Register it as a runner observer.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sensors", s.handleSensors)
	mux.HandleFunc("GET /api/descriptors", s.handleDescriptors)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))
	mux.Handle("GET "+WebSocketPath, s.hub)
	return logRequests(mux)
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	logging.Info("HTTP server listening",
		zap.String("addr", listener.Addr().String()),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Start
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Shutdown stops accepting requests, disconnects WebSocket clients and waits
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP server...")

	s.hub.Close()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	err := httpServer.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewSnapshotMessage(s.table.Snapshot()))
}

func (s *Server) handleDescriptors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewDescriptorList(s.table.Descriptors()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Build:     version.Get(),
		Clients:   s.hub.Clients(),
		Dropped:   s.hub.Dropped(),
		Sequence:  s.table.Snapshot().Seq,
		Timestamp: time.Now(),
	}
	if s.status != nil {
		resp.Runner = s.status.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.status == nil || !s.status.IsRunning() {
		http.Error(w, "runner stopped", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}
