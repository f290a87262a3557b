package room

import (
	"crypto/subtle"
	"sync"
	"time"

	"trueinterview/pkg/types"
)

// Slot is one role's seat in a room.
// ConnectionID outlives a disconnect so a reconnection can be matched to it.
type Slot struct {
	ConnectionID string
	Present      bool
	ClientInfo   *types.ClientInfo
}

// Room is the unit of session state binding one interviewer and one interviewee.
// ARCHITECTURAL DISCOVERY: every mutable field is guarded by the room's own
// mutex; callers hold Lock for the whole of a compound operation
type Room struct {
	mu sync.Mutex

	// Immutable after creation
	ID            string
	SessionSecret string
	CreatedAt     time.Time

	// Guarded by mu
	Interviewer    Slot
	Interviewee    Slot
	State          types.LifecycleState
	Document       string
	ActiveEditor   types.Role
	ChatLog        []types.ChatEntry
	Metrics        *types.MetricsSnapshot
	LastActivityAt time.Time
	StartedAt      *time.Time
}

func newRoom(id, secret string, now time.Time) *Room {
	return &Room{
		ID:             id,
		SessionSecret:  secret,
		CreatedAt:      now,
		State:          types.StateWaiting,
		LastActivityAt: now,
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// VerifySecret compares a presented secret against the room's in constant time.
// Safe without the lock; the secret is immutable.
func (r *Room) VerifySecret(secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(r.SessionSecret)) == 1
}

// The methods below require the caller to hold the lock.

// Slot returns the seat for role, or nil for an unknown role.
func (r *Room) Slot(role types.Role) *Slot {
	switch role {
	case types.RoleInterviewer:
		return &r.Interviewer
	case types.RoleInterviewee:
		return &r.Interviewee
	default:
		return nil
	}
}

// BoundRole reports which seat holds connID, present or not.
func (r *Room) BoundRole(connID string) (types.Role, bool) {
	if connID == "" {
		return "", false
	}
	switch connID {
	case r.Interviewer.ConnectionID:
		return types.RoleInterviewer, true
	case r.Interviewee.ConnectionID:
		return types.RoleInterviewee, true
	}
	return "", false
}

// PresentRole reports which seat connID currently occupies as a live participant.
func (r *Room) PresentRole(connID string) (types.Role, bool) {
	role, ok := r.BoundRole(connID)
	if !ok || !r.Slot(role).Present {
		return "", false
	}
	return role, true
}

// Ended reports whether the room reached its terminal state.
func (r *Room) Ended() bool {
	return r.State == types.StateEnded
}

// BothAbsent reports whether neither participant is connected.
func (r *Room) BothAbsent() bool {
	return !r.Interviewer.Present && !r.Interviewee.Present
}

// Touch records activity for the idle reaper.
func (r *Room) Touch(now time.Time) {
	r.LastActivityAt = now
}

// PresentConnections lists connected participants, skipping exclude.
func (r *Room) PresentConnections(exclude string) []string {
	conns := make([]string, 0, 2)
	if r.Interviewer.Present && r.Interviewer.ConnectionID != exclude {
		conns = append(conns, r.Interviewer.ConnectionID)
	}
	if r.Interviewee.Present && r.Interviewee.ConnectionID != exclude {
		conns = append(conns, r.Interviewee.ConnectionID)
	}
	return conns
}

// AppendChat adds a line to the chat log.
func (r *Room) AppendChat(entry types.ChatEntry) {
	r.ChatLog = append(r.ChatLog, entry)
}

// ActiveEditorRef returns the active editor as a nullable pointer for the wire.
func (r *Room) ActiveEditorRef() *types.Role {
	if r.ActiveEditor == "" {
		return nil
	}
	editor := r.ActiveEditor
	return &editor
}

// Snapshot captures what a connection joining as role is allowed to see.
// FUNCTIONAL DISCOVERY: the session secret is filled only for the interviewer
func (r *Room) Snapshot(role types.Role) types.Snapshot {
	messages := make([]types.ChatEntry, len(r.ChatLog))
	copy(messages, r.ChatLog)

	snap := types.Snapshot{
		RoomID:               r.ID,
		Role:                 role,
		Status:               r.State,
		Code:                 r.Document,
		Messages:             messages,
		InterviewerConnected: r.Interviewer.Present,
		IntervieweeConnected: r.Interviewee.Present,
		HasInterviewee:       r.Interviewee.Present,
		ActiveEditor:         r.ActiveEditorRef(),
		InterviewerInfo:      r.Interviewer.ClientInfo,
		IntervieweeInfo:      r.Interviewee.ClientInfo,
	}
	if role == types.RoleInterviewer {
		snap.SessionSecret = r.SessionSecret
	}
	return snap
}

// Status summarizes presence for the HTTP side channel.
func (r *Room) Status() types.RoomStatus {
	return types.RoomStatus{
		RoomID:               r.ID,
		Status:               r.State,
		InterviewerConnected: r.Interviewer.Present,
		IntervieweeConnected: r.Interviewee.Present,
		Monitoring:           r.Interviewee.Present && r.Metrics != nil,
		CreatedAt:            r.CreatedAt,
		LastActivityAt:       r.LastActivityAt,
	}
}
