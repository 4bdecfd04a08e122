package gateway

import (
	"errors"
	"time"

	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var errSendBufferFull = errors.New("send buffer full")

// serverEvent is the outbound wire envelope.
type serverEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// client is one live websocket connection. userID is set once by the read
// pump when the connection identifies itself and never changes afterwards.
type client struct {
	id     string
	userID string
	gw     *Gateway
	conn   *websocket.Conn
	send   chan serverEvent
}

func (c *client) ID() string { return c.id }

// Send enqueues ev for the write pump. It never blocks; a full buffer is an
// error so the registry can count the connection as unreachable.
func (c *client) Send(ev *models.NotificationEvent) error {
	select {
	case c.send <- serverEvent{Event: string(ev.Type), Data: ev.Payload}:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) sendError(code, message string) {
	select {
	case c.send <- serverEvent{Event: "error", Data: errorPayload{Code: code, Message: message}}:
	default:
		c.gw.log.Warn("dropping error event, send buffer full")
	}
}

// readPump owns all reads on the connection. The read deadline doubles as
// the idle timeout: any frame or pong pushes it forward, and a silent
// connection is torn down when it expires.
func (c *client) readPump() {
	defer func() {
		c.gw.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.gw.registry.Touch(c.id)
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.idleTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.log.Debug("read failed", sl.Err(err))
			}
			return
		}

		c.gw.registry.Touch(c.id)
		_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.idleTimeout))

		c.gw.handleEvent(c, raw)
	}
}

// writePump owns all writes on the connection: queued events plus keepalive
// pings, so concurrent writers never touch the socket directly.
func (c *client) writePump() {
	pingPeriod := c.gw.idleTimeout * 9 / 10

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
