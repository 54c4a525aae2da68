package socketio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn is one Engine.IO websocket session. It satisfies hub.Writer.
type conn struct {
	ws *websocket.Conn

	sid       string
	socketSID string

	connected atomic.Bool

	sendMu sync.Mutex

	pingInterval time.Duration
	pingTimeout  time.Duration

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time

	closed atomic.Bool
	done   chan struct{}
}

func newConn(ws *websocket.Conn, pingInterval, pingTimeout time.Duration) *conn {
	return &conn{
		ws:           ws,
		sid:          uuid.NewString(),
		socketSID:    uuid.NewString(),
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		nextPingAt:   time.Now().Add(pingInterval),
		done:         make(chan struct{}),
	}
}

func (c *conn) Write(message []byte) error {
	return c.writeText(string(message))
}

func (c *conn) Close() error {
	c.close()
	return nil
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	_ = c.ws.Close()
}

func (c *conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *conn) readLoop(onMessage func(string)) {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

// pingLoop sends Engine.IO pings and closes the session when a pong does
// not arrive within pingTimeout.
func (c *conn) pingLoop() {
	tick := c.pingInterval / 25
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	if tick > time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.pingMu.Lock()
			if c.awaitingPong && now.Sub(c.pingSentAt) > c.pingTimeout {
				c.pingMu.Unlock()
				c.close()
				return
			}
			if !c.awaitingPong && !now.Before(c.nextPingAt) {
				c.awaitingPong = true
				c.pingSentAt = now
				c.nextPingAt = now.Add(c.pingInterval)
				c.pingMu.Unlock()
				_ = c.writeText(string(enginePing))
				continue
			}
			c.pingMu.Unlock()
		}
	}
}

func (c *conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
