package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// WebsocketTransport dials the server's /api/ws endpoint with the bearer
// token in the query string, the way browser clients have to.
type WebsocketTransport struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

func (t *WebsocketTransport) Dial(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	url := t.URL
	if len(t.Token) > 0 {
		url += "?tk=" + t.Token
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ev models.Event) error {
	return c.conn.WriteMessage(websocket.TextMessage, ev.Marshal())
}

func (c *wsConn) Receive() (models.Event, error) {
	var ev models.Event
	_, packet, err := c.conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := jsoniter.Unmarshal(packet, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
