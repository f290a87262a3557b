package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"trueinterview/internal/router"
	"trueinterview/internal/scheduler"
	"trueinterview/internal/session"
	"trueinterview/pkg/interfaces"
	"trueinterview/pkg/types"
)

// handlerFunc handles one decoded inbound event for a connection
type handlerFunc func(h *Hub, connID string, data json.RawMessage) error

// Hub turns inbound frames into gateway and router calls and turns their
// errors into structured events for the sender.
// ARCHITECTURAL DISCOVERY: Central coordination point for all inbound events;
// a failure while handling one event is reported to its sender only and
// never reaches other connections or rooms
type Hub struct {
	gateway  *session.Gateway
	router   *router.Router
	reaper   *scheduler.Reaper
	handlers map[string]handlerFunc

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub. reaper may be nil.
func NewHub(gateway *session.Gateway, rt *router.Router, reaper *scheduler.Reaper) *Hub {
	return &Hub{
		gateway:  gateway,
		router:   rt,
		reaper:   reaper,
		handlers: defaultHandlers(),
	}
}

func defaultHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		types.EventCreateRoom:         handleCreateRoom,
		types.EventJoinSession:        handleJoinSession,
		types.EventCodeUpdate:         handleCodeUpdate,
		types.EventActiveEditorUpdate: handleActiveEditor,
		types.EventEndSession:         handleEndSession,
		types.EventChatMessage:        handleChatMessage,
		types.EventRequestMetrics:     handleRequestMetrics,
		types.EventHandleMetrics:      handleMetrics,
	}
}

// Start begins hub processing and the idle reaper
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	if h.reaper != nil {
		if err := h.reaper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start reaper: %w", err)
		}
	}
	h.running = true

	logrus.Info("Event hub started")
	return nil
}

// Stop stops accepting events and halts the reaper
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	if h.reaper != nil {
		if err := h.reaper.Stop(); err != nil && !errors.Is(err, scheduler.ErrReaperNotRunning) {
			logrus.WithError(err).Warn("Failed to stop reaper")
		}
	}

	logrus.Info("Event hub stopped")
	return nil
}

// IsRunning reports whether the hub accepts events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch decodes and handles one frame from conn.
// FUNCTIONAL DISCOVERY: called synchronously from the connection's read loop,
// so one connection's events are handled in arrival order
func (h *Hub) Dispatch(ctx context.Context, conn interfaces.Connection, frame []byte) {
	var in types.Inbound

	// TECHNICAL DISCOVERY: a panicking handler is contained here and reported
	// as a generic error, the process and other rooms carry on
	defer func() {
		if rec := recover(); rec != nil {
			logrus.WithFields(logrus.Fields{
				"conn_id": conn.ID(),
				"event":   in.Type,
				"panic":   rec,
			}).Errorf("Handler panicked\n%s", debug.Stack())
			h.sendError(conn, CodeInternal, "Internal server error")
		}
	}()

	if !h.IsRunning() {
		h.sendError(conn, CodeUnavailable, "Server is not accepting events")
		return
	}

	if err := json.Unmarshal(frame, &in); err != nil || in.Type == "" {
		h.sendError(conn, CodeMalformedPayload, "Invalid message format")
		return
	}

	if err := h.router.Allow(conn.ID()); err != nil {
		h.report(conn, &in, err)
		return
	}

	handler, ok := h.handlers[in.Type]
	if !ok {
		h.report(conn, &in, ErrUnknownEvent)
		return
	}

	if err := handler(h, conn.ID(), in.Data); err != nil {
		h.report(conn, &in, err)
	}
}

// Disconnect releases everything held for a connection that went away
func (h *Hub) Disconnect(connID string) {
	h.gateway.Disconnect(connID)
	h.router.Forget(connID)
}

// report converts a handler error into the event the sender receives
func (h *Hub) report(conn interfaces.Connection, in *types.Inbound, err error) {
	message := err.Error()
	var notice *interfaces.Notice
	if errors.As(err, &notice) {
		message = notice.Message
	}

	switch {
	case errors.Is(err, interfaces.ErrRoomNotFound):
		h.send(conn, types.EventRoomNotFound, &types.RoomNotice{RoomID: roomIDOf(in.Data)})
	case errors.Is(err, interfaces.ErrRoomFull):
		h.send(conn, types.EventRoomFull, &types.RoomNotice{RoomID: roomIDOf(in.Data)})
	case errors.Is(err, interfaces.ErrUnauthorized):
		h.sendError(conn, CodeUnauthorized, message)
	case errors.Is(err, interfaces.ErrMalformedPayload):
		h.sendError(conn, CodeMalformedPayload, message)
	case errors.Is(err, interfaces.ErrNotInRoom):
		h.sendError(conn, CodeNotInRoom, "Join a session first")
	case errors.Is(err, router.ErrRateLimitExceeded):
		h.sendError(conn, CodeRateLimited, "Too many events, slow down")
	case errors.Is(err, ErrUnknownEvent):
		h.sendError(conn, CodeUnknownEvent, fmt.Sprintf("Unknown event %q", in.Type))
	case errors.Is(err, session.ErrGatewayStopped):
		h.sendError(conn, CodeUnavailable, "Server is shutting down")
	default:
		logrus.WithFields(logrus.Fields{
			"conn_id": conn.ID(),
			"event":   in.Type,
		}).WithError(err).Error("Event handling failed")
		h.sendError(conn, CodeInternal, "Internal server error")
	}
}

func (h *Hub) sendError(conn interfaces.Connection, code, message string) {
	h.send(conn, types.EventError, &types.ErrorPayload{Code: code, Message: message})
}

func (h *Hub) send(conn interfaces.Connection, eventType string, data interface{}) {
	if err := conn.WriteJSON(types.NewEnvelope(eventType, data)); err != nil {
		logrus.WithField("conn_id", conn.ID()).WithError(err).Debug("Failed to send to sender")
	}
}

// roomIDOf pulls roomId out of a payload for error replies
func roomIDOf(data json.RawMessage) string {
	var probe struct {
		RoomID string `json:"roomId"`
	}
	if len(data) == 0 || json.Unmarshal(data, &probe) != nil {
		return ""
	}
	return probe.RoomID
}

// decode unmarshals an event payload, reporting bad shapes as malformed
func decode(eventType string, data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return interfaces.NewNotice(interfaces.ErrMalformedPayload, fmt.Sprintf("Missing payload for %s", eventType))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return interfaces.NewNotice(interfaces.ErrMalformedPayload, fmt.Sprintf("Invalid payload for %s", eventType))
	}
	return nil
}

// GetStats returns hub statistics for monitoring
func (h *Hub) GetStats() map[string]int {
	stats := h.gateway.GetStats()
	for k, v := range h.router.GetStats() {
		stats[k] = v
	}
	return stats
}
