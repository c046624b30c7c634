package serial

import (
	"context"
	"io"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads text chunks from a receiver-bridge connection. The
// browser holds the physical serial port and relays raw chunks over one
// WebSocket message each; message boundaries carry no meaning, the framer
// downstream re-splits on newlines.
type WebSocketSource struct {
	conn *websocket.Conn
}

func NewWebSocketSource(conn *websocket.Conn) *WebSocketSource {
	return &WebSocketSource{conn: conn}
}

func (s *WebSocketSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return "", io.EOF
		}
		return "", err
	}
	return string(data), nil
}

func (s *WebSocketSource) Close() error {
	return s.conn.Close()
}
