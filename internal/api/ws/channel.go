package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// channel adapts a gorilla websocket connection to the hub's Channel
// interface. gorilla allows one concurrent writer, so sends serialize on
// a mutex; the write deadline makes a hung peer indistinguishable from a
// dead one, which is exactly how the hub wants it.
type channel struct {
	conn        *websocket.Conn
	mu          sync.Mutex
	sendTimeout time.Duration
}

func newChannel(conn *websocket.Conn, sendTimeout time.Duration) *channel {
	return &channel{
		conn:        conn,
		sendTimeout: sendTimeout,
	}
}

func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *channel) Close() error {
	return c.conn.Close()
}
