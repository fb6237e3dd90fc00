package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hearsay-live/hearsay/internal/observe"
)

// writeTimeout bounds one outbound frame so a stalled peer cannot wedge the
// transcript path behind a full TCP window.
const writeTimeout = 5 * time.Second

// wsClient adapts one websocket connection to the session's Client interface.
// A mutex serializes writers: the session event path and the per-segment
// translation senders all emit frames concurrently, and frame order on the
// wire must follow call order.
type wsClient struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	metrics *observe.Metrics
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, metrics: observe.DefaultMetrics()}
}

// Send marshals frame to JSON and writes it as one text message.
func (c *wsClient) Send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("server: marshal frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("server: write frame: %w", err)
	}
	c.metrics.RecordWSMessage(ctx, "out")
	return nil
}
