package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection defaults
const (
	DefaultSendBuffer   = 100
	DefaultWriteTimeout = 5 * time.Second
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps conn with a server-assigned id and starts its writer
func NewConnection(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the server-assigned connection id
func (c *Connection) ID() string {
	return c.id
}

// Context is cancelled once the connection is closed or its writer fails
func (c *Connection) Context() context.Context {
	return c.ctx
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.cancel()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Debug("Write failed, stopping writer")
				// TECHNICAL DISCOVERY: later WriteJSON calls report closed instead of
				// filling a buffer nobody drains
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for the writer without blocking.
// FUNCTIONAL DISCOVERY: a slow client loses messages instead of stalling the
// room that is fanning out to it; delivery is at-most-once
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
