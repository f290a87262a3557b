package types

import (
	"encoding/json"
	"time"
)

// Inbound event names
const (
	EventCreateRoom         = "create-room"
	EventJoinSession        = "join-session"
	EventCodeUpdate         = "code-update"
	EventActiveEditorUpdate = "active-editor-update"
	EventEndSession         = "end-session"
	EventChatMessage        = "chat-message"
	EventRequestMetrics     = "request-metrics"
	EventHandleMetrics      = "handle-metrics"
)

// Outbound event names. code-update, active-editor-update and chat-message
// are shared with the inbound set.
const (
	EventRoomCreated             = "room-created"
	EventSessionJoined           = "session-joined"
	EventRoomNotFound            = "room-not-found"
	EventRoomFull                = "room-full"
	EventRoomEnded               = "room-ended"
	EventInterviewerJoined       = "interviewer-joined"
	EventInterviewerDisconnected = "interviewer-disconnected"
	EventIntervieweeJoined       = "interviewee-joined"
	EventIntervieweeLeft         = "interviewee-left"
	EventMonitoringStopped       = "monitoring-stopped"
	EventProcessUpdate           = "processUpdate"
	EventError                   = "error"
)

// Inbound is the frame every client message arrives in.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope is the frame every server notification leaves in.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope stamps an outbound notification with the current time.
func NewEnvelope(eventType string, data interface{}) *Envelope {
	return &Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Inbound payloads

type JoinSessionPayload struct {
	RoomID     string      `json:"roomId"`
	Role       string      `json:"role"`
	ClientInfo *ClientInfo `json:"clientInfo,omitempty"`
	// OS is the flat field older clients send instead of clientInfo.
	OS string `json:"os,omitempty"`
}

// Info merges the flat os field into clientInfo.
func (p *JoinSessionPayload) Info() *ClientInfo {
	if p.ClientInfo != nil {
		info := *p.ClientInfo
		if info.OS == "" {
			info.OS = p.OS
		}
		return &info
	}
	if p.OS != "" {
		return &ClientInfo{OS: p.OS}
	}
	return nil
}

type CodeUpdatePayload struct {
	RoomID       string `json:"roomId"`
	Code         string `json:"code"`
	ActiveEditor string `json:"activeEditor,omitempty"`
}

type ActiveEditorPayload struct {
	RoomID       string  `json:"roomId"`
	ActiveEditor *string `json:"activeEditor"`
}

type EndSessionPayload struct {
	RoomID string `json:"roomId"`
}

type ChatMessagePayload struct {
	RoomID    string `json:"roomId"`
	Message   string `json:"message"`
	Sender    string `json:"sender,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type RequestMetricsPayload struct {
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
}

// Outbound payloads

type RoomCreated struct {
	RoomID        string `json:"roomId"`
	SessionSecret string `json:"sessionSecret"`
}

type RoomNotice struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

type PeerNotice struct {
	RoomID     string      `json:"roomId"`
	ClientInfo *ClientInfo `json:"clientInfo,omitempty"`
}

type CodeUpdate struct {
	RoomID       string `json:"roomId"`
	Code         string `json:"code"`
	ActiveEditor *Role  `json:"activeEditor"`
}

type ActiveEditorUpdate struct {
	RoomID       string `json:"roomId"`
	ActiveEditor *Role  `json:"activeEditor"`
}

type ChatMessage struct {
	RoomID string `json:"roomId"`
	ChatEntry
}

// ProcessUpdate carries either a *MetricsSnapshot or a *MetricsStatus.
type ProcessUpdate struct {
	RoomID string      `json:"roomId"`
	Data   interface{} `json:"data"`
}

// Metrics status codes
const (
	MetricsStatusNotMonitored = "not-monitored"
	MetricsStatusWaiting      = "waiting"
)

type MetricsStatus struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// MetricsNotice answers a metrics pull that was refused. It never carries metrics.
type MetricsNotice struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
