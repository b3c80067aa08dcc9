package wsrouter

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn serializes writes to a websocket connection so that handlers and
// background forwarders can share it.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{Conn: conn}
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.Conn.WriteJSON(v)
}

// CloseWithCode sends a close frame carrying code and closes the connection.
func (c *Conn) CloseWithCode(code int, text string) error {
	c.mu.Lock()
	err := c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	c.mu.Unlock()

	if cerr := c.Conn.Close(); err == nil {
		err = cerr
	}

	return err
}
