package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// BridgeURL builds the WebSocket URL of a bridge from host and port
func BridgeURL(host string, port int) string {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: WebSocketPath}
	if strings.Contains(host, ":") {
		u.Host = fmt.Sprintf("[%s]:%d", host, port)
	}
	return u.String()
}

// Subscribe connects to a bridge's snapshot stream and calls fn for every
// message until ctx is cancelled or the connection fails. It returns nil when
// ctx ends the subscription.
func Subscribe(ctx context.Context, bridgeURL string, fn func(*SnapshotMessage)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", bridgeURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("bridge closed the stream: %w", err)
			}
			return fmt.Errorf("failed to read from %s: %w", bridgeURL, err)
		}

		var msg SnapshotMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("invalid snapshot message: %w", err)
		}
		fn(&msg)
	}
}
