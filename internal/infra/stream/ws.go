// File: internal/infra/stream/ws.go
package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"agentboard/internal/domain/ports/adapter"
)

// WSTransport dials websocket streams. The resource id is appended to the
// base URL path; an empty id addresses the process-wide event stream.
type WSTransport struct {
	baseURL     string
	dialTimeout time.Duration
}

var _ adapter.StreamTransport = (*WSTransport)(nil)

func NewWSTransport(baseURL string, dialTimeout time.Duration) *WSTransport {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &WSTransport{baseURL: baseURL, dialTimeout: dialTimeout}
}

func (t *WSTransport) Dial(ctx context.Context, resourceID string) (adapter.StreamConn, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, fmt.Errorf("stream url: %w", err)
	}
	if resourceID != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + url.PathEscape(resourceID)
	}

	dctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteFrame(payload []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
