package hub

import (
	"encoding/json"

	"trueinterview/pkg/types"
)

func handleCreateRoom(h *Hub, connID string, _ json.RawMessage) error {
	_, err := h.gateway.CreateRoom(connID)
	return err
}

func handleJoinSession(h *Hub, connID string, data json.RawMessage) error {
	var p types.JoinSessionPayload
	if err := decode(types.EventJoinSession, data, &p); err != nil {
		return err
	}
	_, err := h.gateway.JoinSession(connID, &p)
	return err
}

func handleCodeUpdate(h *Hub, connID string, data json.RawMessage) error {
	var p types.CodeUpdatePayload
	if err := decode(types.EventCodeUpdate, data, &p); err != nil {
		return err
	}
	return h.router.CodeUpdate(connID, &p)
}

func handleActiveEditor(h *Hub, connID string, data json.RawMessage) error {
	var p types.ActiveEditorPayload
	if err := decode(types.EventActiveEditorUpdate, data, &p); err != nil {
		return err
	}
	return h.router.ActiveEditorUpdate(connID, &p)
}

func handleEndSession(h *Hub, connID string, data json.RawMessage) error {
	var p types.EndSessionPayload
	if len(data) > 0 {
		if err := decode(types.EventEndSession, data, &p); err != nil {
			return err
		}
	}
	return h.gateway.EndSession(connID, &p)
}

func handleChatMessage(h *Hub, connID string, data json.RawMessage) error {
	var p types.ChatMessagePayload
	if err := decode(types.EventChatMessage, data, &p); err != nil {
		return err
	}
	return h.router.ChatMessage(connID, &p)
}

func handleRequestMetrics(h *Hub, connID string, data json.RawMessage) error {
	var p types.RequestMetricsPayload
	if err := decode(types.EventRequestMetrics, data, &p); err != nil {
		return err
	}
	return h.router.RequestMetrics(connID, &p)
}

// FUNCTIONAL DISCOVERY: metrics payloads are never decoded here, the
// normalizer owns every shape they can take
func handleMetrics(h *Hub, connID string, data json.RawMessage) error {
	return h.router.HandleMetrics(connID, data)
}
