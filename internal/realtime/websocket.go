package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/mmcdole/rolodex/internal/domain"
)

// WebSocketDialer connects to <BaseURL>/ws/operations/{id}
type WebSocketDialer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewWebSocketDialer creates a dialer for the given ws:// or wss:// base
func NewWebSocketDialer(baseURL string) *WebSocketDialer {
	return &WebSocketDialer{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Dial opens the progress stream for one operation
func (d *WebSocketDialer) Dial(ctx context.Context, operationID string) (Conn, error) {
	endpoint := d.BaseURL + "/ws/operations/" + url.PathEscape(operationID)

	c, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrTransport, endpoint, err)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
