package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/runner"
	"github.com/muurk/easyfire/internal/sensor"
)

type fakeStatus struct {
	running bool
}

func (f *fakeStatus) IsRunning() bool { return f.running }
func (f *fakeStatus) Status() runner.Status {
	return runner.Status{Running: f.running, Source: "tcp://10.0.2.30:23", Stats: runner.Stats{Frames: 7}}
}

func newTestServer(t *testing.T, status *fakeStatus) (*Server, *sensor.Table, *httptest.Server) {
	t.Helper()
	table, err := sensor.NewTable(sensor.DefaultDescriptors())
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	s := New(&Config{}, table, status, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, table, ts
}

func thirteen() *protocol.Reading {
	temps := make([]protocol.Temperature, 13)
	for i := range temps {
		temps[i] = protocol.Temperature(215 + i)
	}
	return &protocol.Reading{Kind: protocol.FrameSense, Temperatures: temps}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, body
}

func TestSensorsEndpoint(t *testing.T) {
	_, table, ts := newTestServer(t, &fakeStatus{running: true})

	if err := table.Update(thirteen()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	resp, body := get(t, ts.URL+"/api/sensors")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var msg SnapshotMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, body)
	}
	if msg.Seq != 1 || msg.UpdatedAt == nil {
		t.Errorf("seq/updated_at = %d/%v", msg.Seq, msg.UpdatedAt)
	}
	if len(msg.Sensors) != len(sensor.DefaultDescriptors()) {
		t.Fatalf("got %d sensors", len(msg.Sensors))
	}

	flow, ok := msg.Lookup("Flow")
	if !ok {
		t.Fatal("Flow missing")
	}
	if flow.Value != 21.5 || flow.Unit != "°C" || flow.Kind != "temperature" || flow.Frame != "sense" || !flow.Valid {
		t.Errorf("Flow = %+v", flow)
	}
	mixer, _ := msg.Lookup("Return Mixer")
	if mixer.Valid || mixer.Value != nil || mixer.UpdatedAt != nil {
		t.Errorf("Return Mixer = %+v, want invalid with null value", mixer)
	}
}

func TestDescriptorsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, &fakeStatus{})

	_, body := get(t, ts.URL+"/api/descriptors")
	var descs []DescriptorJSON
	if err := json.Unmarshal(body, &descs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(descs) != 12 {
		t.Fatalf("got %d descriptors, want 12", len(descs))
	}
	last := descs[len(descs)-1]
	if last.Name != "Resupply" || last.Index != 25 || last.Kind != "flag" || last.Frame != "control" {
		t.Errorf("last descriptor = %+v", last)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		running bool
		want    int
	}{
		{"running", true, http.StatusOK},
		{"stopped", false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ts := newTestServer(t, &fakeStatus{running: tt.running})
			resp, _ := get(t, ts.URL+"/healthz")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, &fakeStatus{running: true})

	_, body := get(t, ts.URL+"/api/status")
	var st StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !st.Runner.Running || st.Runner.Source != "tcp://10.0.2.30:23" || st.Runner.Stats.Frames != 7 {
		t.Errorf("runner status = %+v", st.Runner)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, &fakeStatus{})
	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics missing go_goroutines")
	}
}

func TestWebSocketStream(t *testing.T) {
	s, table, ts := newTestServer(t, &fakeStatus{running: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan *SnapshotMessage, 8)
	errc := make(chan error, 1)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + WebSocketPath
	go func() {
		errc <- Subscribe(ctx, wsURL, func(m *SnapshotMessage) { msgs <- m })
	}()

	next := func(what string) *SnapshotMessage {
		t.Helper()
		select {
		case m := <-msgs:
			return m
		case err := <-errc:
			t.Fatalf("Subscribe() returned %v while waiting for %s", err, what)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", what)
		}
		return nil
	}

	if initial := next("initial snapshot"); initial.Seq != 0 {
		t.Errorf("initial seq = %d, want 0", initial.Seq)
	}

	// The client is registered before the initial message is sent
	if err := table.Update(thirteen()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	s.Hub().FrameDecoded(nil, nil, table.Snapshot())

	update := next("update")
	if update.Seq != 1 {
		t.Errorf("update seq = %d, want 1", update.Seq)
	}
	if outside, _ := update.Lookup("Outside"); outside.Value != 22.1 {
		t.Errorf("Outside = %v, want 22.1", outside.Value)
	}
	if n := s.Hub().Clients(); n != 1 {
		t.Errorf("Clients() = %d, want 1", n)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Subscribe() after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe() did not return after cancel")
	}
}

func TestHubDropsForSlowClient(t *testing.T) {
	table, err := sensor.NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	h := NewHub(table)
	slow := &wsClient{addr: "slow", send: make(chan []byte, 1)}
	h.clients[slow] = struct{}{}

	h.Publish(table.Snapshot())
	h.Publish(table.Snapshot())
	h.Publish(table.Snapshot())

	if got := h.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if len(slow.send) != 1 {
		t.Errorf("queued %d messages, want 1", len(slow.send))
	}

	h.Close()
	if h.Clients() != 0 {
		t.Error("Close() left clients registered")
	}
	if _, ok := <-slow.send; !ok {
		t.Error("queued message lost on Close")
	}
	if _, ok := <-slow.send; ok {
		t.Error("send channel not closed")
	}
}

func TestServerStartShutdown(t *testing.T) {
	table, err := sensor.NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	s := New(&Config{Listen: "127.0.0.1:0"}, table, &fakeStatus{running: true}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Port() == 0 {
		t.Fatal("Port() = 0 after Start")
	}

	resp, _ := get(t, "http://"+s.Addr().String()+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestBridgeURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"192.168.1.20", 8080, "ws://192.168.1.20:8080/ws"},
		{"fe80::1", 8080, "ws://[fe80::1]:8080/ws"},
		{"bridge.local", 80, "ws://bridge.local:80/ws"},
	}
	for _, tt := range tests {
		if got := BridgeURL(tt.host, tt.port); got != tt.want {
			t.Errorf("BridgeURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
