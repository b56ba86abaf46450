package bridge

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// PingMessage is the WebSocket control frame type used for keepalive.
const PingMessage = websocket.PingMessage

// Conn is the transport surface the bridge needs. *websocket.Conn
// satisfies it; tests substitute an in-process fake.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a push channel to the given URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer is the production Dialer backed by gorilla/websocket.
type WebsocketDialer struct {
	// Handshake bounds the dial; zero means the gorilla default.
	Handshake time.Duration
}

// Dial opens the WebSocket connection.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := *websocket.DefaultDialer
	if d.Handshake > 0 {
		dialer.HandshakeTimeout = d.Handshake
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
