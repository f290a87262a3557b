package types

import (
	"encoding/json"
	"time"
)

// Role identifies which side of an interview a connection speaks for.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleInterviewee Role = "interviewee"
)

// Other returns the opposite role. The zero Role has no counterpart.
func (r Role) Other() Role {
	switch r {
	case RoleInterviewer:
		return RoleInterviewee
	case RoleInterviewee:
		return RoleInterviewer
	default:
		return ""
	}
}

// LifecycleState tracks where a room is in its life.
// ARCHITECTURAL DISCOVERY: Ended is terminal, a room never leaves it
type LifecycleState string

const (
	StateWaiting LifecycleState = "waiting"
	StateActive  LifecycleState = "active"
	StateEnded   LifecycleState = "ended"
)

// ClientInfo is the optional device description a participant sends on join.
type ClientInfo struct {
	OS        string `json:"os,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ChatEntry is one line of a room's chat log.
// FUNCTIONAL DISCOVERY: JSON names follow the browser client's chat-message shape
// (sender, userId, message, timestamp) so late joiners replay the same objects
type ChatEntry struct {
	ID           string    `json:"id"`
	SenderRole   Role      `json:"sender"`
	ConnectionID string    `json:"userId"`
	Text         string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProcessMetric is the numeric form of a normalized process report.
type ProcessMetric struct {
	ProcessName string  `json:"processName"`
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	MemoryMB    float64 `json:"memoryMB"`
}

// AppPresence is the presence-check form of a normalized process report.
type AppPresence struct {
	ProcessName string `json:"processName"`
	IsRunning   bool   `json:"isRunning"`
}

// Snapshot kinds
const (
	MetricsKindEmpty    = "empty"
	MetricsKindNumeric  = "numeric"
	MetricsKindPresence = "presence"
)

// MetricsSnapshot is a normalized process report cached per room.
// Exactly one of Processes or Presence is populated, matching Kind.
type MetricsSnapshot struct {
	Kind       string
	Processes  []ProcessMetric
	Presence   []AppPresence
	ReceivedAt time.Time
}

// Len reports the number of entries in the snapshot.
func (s *MetricsSnapshot) Len() int {
	if s == nil {
		return 0
	}
	if s.Kind == MetricsKindPresence {
		return len(s.Presence)
	}
	return len(s.Processes)
}

// MarshalJSON encodes the snapshot as the bare list the interviewer UI renders.
// A nil snapshot encodes as null; encoding/json never reaches this method for it.
func (s *MetricsSnapshot) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case MetricsKindPresence:
		if s.Presence == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.Presence)
	default:
		if s.Processes == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.Processes)
	}
}

// Snapshot is the room state handed to a connection when it joins.
// SessionSecret is only ever filled for the interviewer.
type Snapshot struct {
	RoomID               string         `json:"roomId"`
	Role                 Role           `json:"role"`
	Status               LifecycleState `json:"status"`
	Code                 string         `json:"code"`
	Messages             []ChatEntry    `json:"messages"`
	InterviewerConnected bool           `json:"interviewerConnected"`
	IntervieweeConnected bool           `json:"intervieweeConnected"`
	HasInterviewee       bool           `json:"hasInterviewee"`
	ActiveEditor         *Role          `json:"activeEditor"`
	InterviewerInfo      *ClientInfo    `json:"interviewerInfo,omitempty"`
	IntervieweeInfo      *ClientInfo    `json:"intervieweeInfo,omitempty"`
	SessionSecret        string         `json:"sessionSecret,omitempty"`
}

// RoomStatus is the presence summary exposed over the HTTP side channel.
type RoomStatus struct {
	RoomID               string         `json:"roomId"`
	Status               LifecycleState `json:"status"`
	InterviewerConnected bool           `json:"interviewerConnected"`
	IntervieweeConnected bool           `json:"intervieweeConnected"`
	Monitoring           bool           `json:"monitoring"`
	PendingDeletion      bool           `json:"pendingDeletion"`
	CreatedAt            time.Time      `json:"createdAt"`
	LastActivityAt       time.Time      `json:"lastActivityAt"`
}

// Archive record statuses
const (
	RecordStatusWaiting    = "waiting"
	RecordStatusInProgress = "in-progress"
	RecordStatusCompleted  = "completed"
)

// Archive close reasons
const (
	CloseReasonEndedByInterviewer = "ended_by_interviewer"
	CloseReasonGracePeriodExpired = "grace_period_expired"
	CloseReasonMaxAgeExceeded     = "max_age_exceeded"
	CloseReasonIdle               = "idle"
	CloseReasonShutdown           = "shutdown"
)

// RoomRecord is the archived summary of one room's lifetime.
// It never carries chat text or code and is never loaded back into live state.
type RoomRecord struct {
	ArchiveID     int64      `json:"archiveId"`
	RoomID        string     `json:"roomId"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	EndReason     string     `json:"endReason,omitempty"`
	ChatCount     int        `json:"chatCount"`
	IntervieweeOS string     `json:"intervieweeOs,omitempty"`
}
