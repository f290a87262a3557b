package router

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"trueinterview/internal/metrics"
	"trueinterview/internal/room"
	"trueinterview/internal/scheduler"
	"trueinterview/pkg/interfaces"
	"trueinterview/pkg/types"
)

// DefaultEditorIdleTimeout is how long the active-editor hint survives without an edit
const DefaultEditorIdleTimeout = 3 * time.Second

// Client-facing notice texts
const (
	msgMetricsInterviewerOnly = "System metrics are only available to interviewers"
	msgInvalidRoomID          = "Invalid room ID provided"
	msgIntervieweeAbsent      = "Interviewee is not connected"
	msgMetricsWaiting         = "No metrics available yet. Waiting for first update..."
)

// Options tunes router behavior
type Options struct {
	EditorIdleTimeout time.Duration
	RateLimit         int
	RateWindow        time.Duration
}

// Router decides who receives each in-room event.
// ARCHITECTURAL DISCOVERY: Pure fan-out logic without lifecycle management;
// rooms hold connection ids only and the registry resolves them at send time,
// so a vanished recipient is a skipped send, not an error
type Router struct {
	store        *room.Store
	registry     interfaces.ConnectionRegistry
	rateLimiter  *RateLimiter
	editorTimers *scheduler.Timers
	editorIdle   time.Duration
	now          func() time.Time
}

// NewRouter creates a new broadcast router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with fake connections
func NewRouter(store *room.Store, registry interfaces.ConnectionRegistry, opts Options) *Router {
	if opts.EditorIdleTimeout <= 0 {
		opts.EditorIdleTimeout = DefaultEditorIdleTimeout
	}
	return &Router{
		store:        store,
		registry:     registry,
		rateLimiter:  NewRateLimiter(opts.RateLimit, opts.RateWindow),
		editorTimers: scheduler.NewTimers(),
		editorIdle:   opts.EditorIdleTimeout,
		now:          time.Now,
	}
}

// Allow applies the per-connection rate limit
func (rt *Router) Allow(connID string) error {
	if !rt.rateLimiter.Allow(connID) {
		return ErrRateLimitExceeded
	}
	return nil
}

// Forget drops per-connection router state after a disconnect
func (rt *Router) Forget(connID string) {
	rt.rateLimiter.Remove(connID)
}

// CleanupLimiter is the reaper sweep for stale rate-limit windows
func (rt *Router) CleanupLimiter(now time.Time) int {
	return rt.rateLimiter.Cleanup(now)
}

// Notify sends one event to each listed connection.
// FUNCTIONAL DISCOVERY: Continue delivery to other recipients even if one fails
func (rt *Router) Notify(connIDs []string, eventType string, data interface{}) {
	if len(connIDs) == 0 {
		return
	}
	envelope := types.NewEnvelope(eventType, data)
	for _, connID := range connIDs {
		if connID == "" {
			continue
		}
		conn, ok := rt.registry.Lookup(connID)
		if !ok {
			continue
		}
		if err := conn.WriteJSON(envelope); err != nil {
			logrus.WithFields(logrus.Fields{
				"conn_id": connID,
				"event":   eventType,
			}).WithError(err).Warn("Failed to deliver event")
		}
	}
}

// enter resolves the room a participant is acting on and returns it locked.
// An empty roomID falls back to the room the connection is bound to.
func (rt *Router) enter(connID, roomID string) (*room.Room, types.Role, error) {
	if roomID == "" {
		bound, ok := rt.store.Lookup(connID)
		if !ok {
			return nil, "", interfaces.ErrNotInRoom
		}
		roomID = bound
	}

	r, ok := rt.store.Get(roomID)
	if !ok {
		return nil, "", interfaces.ErrRoomNotFound
	}

	r.Lock()
	if r.Ended() {
		r.Unlock()
		return nil, "", interfaces.ErrRoomNotFound
	}
	role, ok := r.PresentRole(connID)
	if !ok {
		r.Unlock()
		return nil, "", interfaces.ErrNotInRoom
	}
	return r, role, nil
}

// CodeUpdate replaces the shared document and fans it out to everyone but the sender.
// FUNCTIONAL DISCOVERY: Last writer wins, concurrent edits overwrite in arrival order
func (rt *Router) CodeUpdate(connID string, p *types.CodeUpdatePayload) error {
	r, role, err := rt.enter(connID, p.RoomID)
	if err != nil {
		return err
	}
	defer r.Unlock()

	editor := role
	if claimed, err := types.ParseRole(p.ActiveEditor); err == nil {
		editor = claimed
	}

	r.Document = p.Code
	r.ActiveEditor = editor
	r.Touch(rt.now())

	rt.Notify(r.PresentConnections(connID), types.EventCodeUpdate, &types.CodeUpdate{
		RoomID:       r.ID,
		Code:         p.Code,
		ActiveEditor: r.ActiveEditorRef(),
	})
	rt.armEditorReset(r)
	return nil
}

// ActiveEditorUpdate relays the ephemeral who-is-typing hint to everyone but the sender
func (rt *Router) ActiveEditorUpdate(connID string, p *types.ActiveEditorPayload) error {
	var editor types.Role
	if p.ActiveEditor != nil && *p.ActiveEditor != "" {
		parsed, err := types.ParseRole(*p.ActiveEditor)
		if err != nil {
			return interfaces.NewNotice(interfaces.ErrMalformedPayload, ErrInvalidEditor.Error())
		}
		editor = parsed
	}

	r, _, err := rt.enter(connID, p.RoomID)
	if err != nil {
		return err
	}
	defer r.Unlock()

	r.ActiveEditor = editor
	r.Touch(rt.now())

	rt.Notify(r.PresentConnections(connID), types.EventActiveEditorUpdate, &types.ActiveEditorUpdate{
		RoomID:       r.ID,
		ActiveEditor: r.ActiveEditorRef(),
	})
	if editor == "" {
		rt.editorTimers.Cancel(r.ID)
	} else {
		rt.armEditorReset(r)
	}
	return nil
}

// armEditorReset clears the active-editor hint after a quiet period.
// Caller holds the room lock.
func (rt *Router) armEditorReset(r *room.Room) {
	rt.editorTimers.Arm(r.ID, rt.editorIdle, func() {
		r.Lock()
		defer r.Unlock()

		// TECHNICAL DISCOVERY: the timer holds the Room pointer, not the id,
		// so an ended room or a reused id is never touched here
		if r.Ended() || r.ActiveEditor == "" {
			return
		}
		r.ActiveEditor = ""
		rt.Notify(r.PresentConnections(""), types.EventActiveEditorUpdate, &types.ActiveEditorUpdate{
			RoomID: r.ID,
		})
	})
}

// CancelEditorReset disarms the editor-idle timer for a room being torn down
func (rt *Router) CancelEditorReset(roomID string) {
	rt.editorTimers.Cancel(roomID)
}

// ChatMessage appends to the room log and fans out to every present participant.
// ARCHITECTURAL DISCOVERY: Server controls ids, timestamps and sender role
// so clients cannot forge another participant's lines
func (rt *Router) ChatMessage(connID string, p *types.ChatMessagePayload) error {
	if err := types.ValidateChatText(p.Message); err != nil {
		return interfaces.NewNotice(interfaces.ErrMalformedPayload, err.Error())
	}

	r, role, err := rt.enter(connID, p.RoomID)
	if err != nil {
		return err
	}
	defer r.Unlock()

	now := rt.now()
	entry := types.ChatEntry{
		ID:           ulid.Make().String(),
		SenderRole:   role,
		ConnectionID: connID,
		Text:         p.Message,
		Timestamp:    now.UTC(),
	}
	// Append before fan-out so a join racing this message replays it
	r.AppendChat(entry)
	r.Touch(now)

	rt.Notify(r.PresentConnections(""), types.EventChatMessage, &types.ChatMessage{
		RoomID:    r.ID,
		ChatEntry: entry,
	})
	return nil
}

// metricsEnvelope is the wrapped handle-metrics form
type metricsEnvelope struct {
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

// HandleMetrics ingests a report pushed over the socket.
// FUNCTIONAL DISCOVERY: Reports that cannot be attributed to a live room are
// dropped without telling the sender anything
func (rt *Router) HandleMetrics(connID string, raw json.RawMessage) error {
	roomID, data := unwrapMetrics(raw)
	if roomID == "" {
		bound, ok := rt.store.Lookup(connID)
		if !ok {
			logrus.WithField("conn_id", connID).Debug("Dropping unattributed metrics")
			return nil
		}
		roomID = bound
	}

	if err := rt.IngestMetrics(roomID, data); err != nil {
		logrus.WithFields(logrus.Fields{
			"conn_id": connID,
			"room_id": roomID,
		}).WithError(err).Debug("Dropping metrics")
	}
	return nil
}

func unwrapMetrics(raw json.RawMessage) (string, json.RawMessage) {
	var env metricsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", raw
	}
	roomID := strings.TrimSpace(env.RoomID)
	if roomID == "" {
		return "", raw
	}
	return roomID, env.Data
}

// IngestMetrics normalizes and caches a report and pushes it to the interviewer only.
// Shared by the socket event and the HTTP side channel.
func (rt *Router) IngestMetrics(roomID string, raw []byte) error {
	r, ok := rt.store.Get(roomID)
	if !ok {
		return interfaces.ErrRoomNotFound
	}

	r.Lock()
	defer r.Unlock()
	if r.Ended() {
		return interfaces.ErrRoomNotFound
	}

	now := rt.now()
	snapshot := metrics.NormalizeAt(raw, now)
	r.Metrics = snapshot
	r.Touch(now)

	if r.Interviewer.Present {
		rt.notifyInterviewer(r, r.Interviewer.ConnectionID, snapshot)
	}
	return nil
}

// RequestMetrics answers an interviewer's pull with the cached snapshot or a status.
// FUNCTIONAL DISCOVERY: a refused pull is answered in-band as a processUpdate
// message so the client renders it where metrics would appear
func (rt *Router) RequestMetrics(connID string, p *types.RequestMetricsPayload) error {
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		rt.notifyMetricsNotice(connID, "invalid", msgInvalidRoomID)
		return nil
	}
	if p.Role != string(types.RoleInterviewer) {
		rt.notifyMetricsNotice(connID, roomID, msgMetricsInterviewerOnly)
		return nil
	}

	r, ok := rt.store.Get(roomID)
	if !ok {
		return interfaces.ErrRoomNotFound
	}

	r.Lock()
	defer r.Unlock()
	if r.Ended() {
		return interfaces.ErrRoomNotFound
	}
	// The asserted role must match the seat the connection actually holds
	if role, ok := r.PresentRole(connID); !ok || role != types.RoleInterviewer {
		rt.notifyMetricsNotice(connID, r.ID, msgMetricsInterviewerOnly)
		return nil
	}

	rt.notifyInterviewer(r, connID, rt.metricsReplyLocked(r))
	return nil
}

// MetricsReply returns what a metrics pull for roomID would see
func (rt *Router) MetricsReply(roomID string) (interface{}, error) {
	r, ok := rt.store.Get(roomID)
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}

	r.Lock()
	defer r.Unlock()
	if r.Ended() {
		return nil, interfaces.ErrRoomNotFound
	}
	return rt.metricsReplyLocked(r), nil
}

// FUNCTIONAL DISCOVERY: stale data is never served for an absent interviewee,
// the cache is cleared instead
func (rt *Router) metricsReplyLocked(r *room.Room) interface{} {
	if !r.Interviewee.Present {
		r.Metrics = nil
		return &types.MetricsStatus{Message: msgIntervieweeAbsent, Status: types.MetricsStatusNotMonitored}
	}
	if r.Metrics == nil {
		return &types.MetricsStatus{Message: msgMetricsWaiting, Status: types.MetricsStatusWaiting}
	}
	return r.Metrics
}

// PushMetrics sends the cached snapshot to a freshly joined interviewer.
// Caller holds the room lock.
func (rt *Router) PushMetrics(r *room.Room) {
	if r.Metrics == nil || !r.Interviewer.Present || !r.Interviewee.Present {
		return
	}
	rt.notifyInterviewer(r, r.Interviewer.ConnectionID, r.Metrics)
}

// notifyInterviewer is the only path that sends room metrics or monitoring
// status. It refuses any connection not bound to r as interviewer.
// Caller holds the room lock.
// ARCHITECTURAL DISCOVERY: the interviewee never receives processUpdate data,
// this is an authorization boundary enforced at delivery, not at each call site
func (rt *Router) notifyInterviewer(r *room.Room, connID string, data interface{}) bool {
	if role, ok := r.BoundRole(connID); !ok || role != types.RoleInterviewer {
		logrus.WithFields(logrus.Fields{
			"room_id": r.ID,
			"conn_id": connID,
		}).Warn("Refused metrics delivery to non-interviewer")
		return false
	}
	rt.Notify([]string{connID}, types.EventProcessUpdate, &types.ProcessUpdate{
		RoomID: r.ID,
		Data:   data,
	})
	return true
}

// notifyMetricsNotice answers a refused pull. It carries a message only,
// never room metrics.
func (rt *Router) notifyMetricsNotice(connID, roomID, message string) {
	rt.Notify([]string{connID}, types.EventProcessUpdate, &types.ProcessUpdate{
		RoomID: roomID,
		Data:   &types.MetricsNotice{Message: message},
	})
}

// Stop disarms every editor timer; used at shutdown
func (rt *Router) Stop() {
	rt.editorTimers.Stop()
}

// GetStats returns router statistics for monitoring
func (rt *Router) GetStats() map[string]int {
	return map[string]int{
		"rate_limited_connections": rt.rateLimiter.Len(),
		"editor_timers":            rt.editorTimers.Len(),
	}
}
