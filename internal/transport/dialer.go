package transport

import (
	"context"

	"github.com/gorilla/websocket"

	"sanskara/internal/ports"
)

// gorillaDialer adapts gorilla's default dialer to the ports.Dialer seam.
type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (ports.Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
