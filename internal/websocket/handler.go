package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trueinterview/pkg/interfaces"
)

// Handler defaults
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultReadLimit        = 1 << 20
)

// Options tunes transport limits and heartbeats
type Options struct {
	ReadLimit        int64
	SendBuffer       int
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	AllowedOrigins   []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait / 2
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return o
}

// Handler upgrades requests and pumps frames into the dispatcher
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic;
// the handler knows nothing about rooms, it only reads, dispatches and cleans up
type Handler struct {
	registry   *Registry
	dispatcher interfaces.EventDispatcher
	opts       Options
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher interfaces.EventDispatcher, opts Options) *Handler {
	opts = opts.withDefaults()
	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	return h
}

// FUNCTIONAL DISCOVERY: an empty allow-list accepts every origin, which the
// browser client needs during local development
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and starts the connection's read loop.
// Connections start anonymous; they join a room through events.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn, h.opts.SendBuffer, h.opts.WriteTimeout)

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		logrus.WithError(err).Error("Failed to register connection")
		_ = wsConn.Close()
		return
	}

	logrus.WithFields(logrus.Fields{
		"conn_id": wsConn.ID(),
		"remote":  r.RemoteAddr,
	}).Info("Connection opened")

	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: Single goroutine per connection reads frames, so
// one connection's events are dispatched in arrival order
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures the room sees the
		// disconnect even if reading exits unexpectedly
		h.dispatcher.Disconnect(conn.ID())
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		logrus.WithField("conn_id", conn.ID()).Info("Connection closed")
	}()

	conn.conn.SetReadLimit(h.opts.ReadLimit)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		logrus.WithError(err).Warn("Failed to set read deadline")
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	// FUNCTIONAL DISCOVERY: Separate ticker goroutine enables consistent heartbeat
	// timing independent of message processing or client responsiveness
	go func() {
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.WithField("conn_id", conn.ID()).WithError(err).Warn("WebSocket error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatcher.Dispatch(conn.ctx, conn, data)
	}
}
