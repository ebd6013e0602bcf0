package chatclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/vedran77/pulseboard/internal/transport/ws"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const readLimit = 1 << 20

// Transport carries real-time events between a session and the hub.
type Transport interface {
	Send(ctx context.Context, evt *ws.Event) error
	Read(ctx context.Context) (*ws.Event, error)
	Close() error
}

// Conn is a Transport over a WebSocket connection.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens the real-time connection at wsURL, authenticating with token.
func Dial(ctx context.Context, wsURL, token string) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	c, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	c.SetReadLimit(readLimit)
	return &Conn{ws: c}, nil
}

func (c *Conn) Send(ctx context.Context, evt *ws.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.ws, evt)
}

func (c *Conn) Read(ctx context.Context) (*ws.Event, error) {
	var evt ws.Event
	if err := wsjson.Read(ctx, c.ws, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
