// Package server exposes the sensor table over HTTP.
//
// # Endpoints
//
//	GET /api/sensors      current snapshot as JSON
//	GET /api/descriptors  configured sensor descriptors
//	GET /api/status       runner state, frame counters, WebSocket clients
//	GET /healthz          200 while the runner is running, 503 otherwise
//	GET /metrics          Prometheus exposition
//	GET /ws               WebSocket snapshot stream
//
// # Snapshot Stream
//
// A WebSocket client receives the current snapshot on connect and then one
// JSON text message per table update. The Hub is registered as a runner
// observer; it encodes each snapshot once and hands it to every client's
// buffered queue without blocking. Each connection has a single writer
// goroutine that also sends pings.
//
// Subscribe is the matching client, used by the CLI dashboard.
//
// # Usage Example
//
//	srv := server.New(&server.Config{Listen: ":8080"}, table, run, reg)
//	// pass srv.Hub() to runner.Config.Observers
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(ctx)
package server
