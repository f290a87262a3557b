package session

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"trueinterview/internal/room"
	"trueinterview/internal/router"
	"trueinterview/internal/scheduler"
	"trueinterview/pkg/interfaces"
	"trueinterview/pkg/types"
)

// Lifetime defaults
const (
	DefaultMaxRoomAge = 24 * time.Hour
	DefaultMaxIdle    = 2 * time.Hour
)

// Options tunes room lifetime rules
type Options struct {
	GracePeriod           time.Duration
	MaxRoomAge            time.Duration
	MaxIdle               time.Duration
	InterviewerAutoCreate bool
}

// Gateway owns the room lifecycle: create, join, disconnect, end and sweep.
// ARCHITECTURAL DISCOVERY: the gateway decides lifecycle transitions and the
// router decides fan-out; both reach rooms only through the store and always
// hold the room lock for the whole of a transition
type Gateway struct {
	store     *room.Store
	router    *router.Router
	deletions *scheduler.DeletionScheduler
	archive   interfaces.RoomArchive
	opts      Options
	now       func() time.Time
	stopped   atomic.Bool
}

// NewGateway creates a session gateway. archive may be nil.
func NewGateway(store *room.Store, rt *router.Router, archive interfaces.RoomArchive, opts Options) *Gateway {
	if opts.MaxRoomAge <= 0 {
		opts.MaxRoomAge = DefaultMaxRoomAge
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = DefaultMaxIdle
	}
	if archive == nil {
		archive = noopArchive{}
	}

	g := &Gateway{
		store:   store,
		router:  rt,
		archive: archive,
		opts:    opts,
		now:     time.Now,
	}
	g.deletions = scheduler.NewDeletionScheduler(opts.GracePeriod, g.expire)
	return g
}

// CreateRoom creates a Waiting room with the caller seated as interviewer.
// Only the creator ever sees the session secret.
func (g *Gateway) CreateRoom(connID string) (*types.RoomCreated, error) {
	if g.stopped.Load() {
		return nil, ErrGatewayStopped
	}

	// FUNCTIONAL DISCOVERY: a connection participates in one room at a time
	g.Disconnect(connID)

	r, err := g.store.Create("")
	if err != nil {
		return nil, err
	}

	r.Lock()
	defer r.Unlock()

	r.Interviewer = room.Slot{ConnectionID: connID, Present: true}
	g.store.Bind(connID, r.ID)
	g.archive.RecordRoomCreated(r.ID, r.CreatedAt)

	created := &types.RoomCreated{RoomID: r.ID, SessionSecret: r.SessionSecret}
	g.router.Notify([]string{connID}, types.EventRoomCreated, created)

	logrus.WithFields(logrus.Fields{
		"room_id": r.ID,
		"conn_id": connID,
	}).Info("Room created")
	return created, nil
}

// JoinSession binds a connection to a role seat and replies with the room snapshot.
// A join for a seat whose id is stale replaces it; this is the reconnection path.
func (g *Gateway) JoinSession(connID string, p *types.JoinSessionPayload) (*types.Snapshot, error) {
	if g.stopped.Load() {
		return nil, ErrGatewayStopped
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return nil, interfaces.NewNotice(interfaces.ErrMalformedPayload, msgRoomIDRequired)
	}
	role, err := types.ParseRole(p.Role)
	if err != nil {
		return nil, interfaces.NewNotice(interfaces.ErrMalformedPayload, msgInvalidRole)
	}
	if !types.IsValidRoomID(roomID) {
		return nil, interfaces.ErrRoomNotFound
	}

	if bound, ok := g.store.Lookup(connID); ok && bound != roomID {
		g.Disconnect(connID)
	}

	r, err := g.resolve(roomID, role)
	if err != nil {
		return nil, err
	}

	r.Lock()
	defer r.Unlock()

	if r.Ended() {
		return nil, interfaces.ErrRoomNotFound
	}

	slot := r.Slot(role)
	// FUNCTIONAL DISCOVERY: keyed on the connection id, so a page reload by the
	// same person is rejected while the old socket still looks present
	if role == types.RoleInterviewee && slot.Present && slot.ConnectionID != connID {
		return nil, interfaces.ErrRoomFull
	}

	// A connection switching seats inside the same room gives up the other one
	if other := r.Slot(role.Other()); other.ConnectionID == connID {
		*other = room.Slot{ClientInfo: other.ClientInfo}
	}

	// Cancel before marking present so a firing timer sees the new presence
	g.deletions.Cancel(r.ID)

	if previous := slot.ConnectionID; previous != "" && previous != connID {
		g.store.Unbind(previous, r.ID)
		logrus.WithFields(logrus.Fields{
			"room_id":  r.ID,
			"role":     role,
			"previous": previous,
			"conn_id":  connID,
		}).Info("Seat taken over by new connection")
	}

	now := g.now()
	slot.ConnectionID = connID
	slot.Present = true
	if info := p.Info(); info != nil {
		slot.ClientInfo = info
	}
	r.Touch(now)

	if role == types.RoleInterviewee {
		if r.State == types.StateWaiting {
			r.State = types.StateActive
		}
		if r.StartedAt == nil {
			started := now
			r.StartedAt = &started
			g.archive.RecordRoomStarted(r.ID, started, slot.ClientInfo)
		}
	}
	g.store.Bind(connID, r.ID)

	snapshot := r.Snapshot(role)
	g.router.Notify([]string{connID}, types.EventSessionJoined, &snapshot)

	peer := r.Slot(role.Other())
	if peer.Present {
		event := types.EventIntervieweeJoined
		if role == types.RoleInterviewer {
			event = types.EventInterviewerJoined
		}
		g.router.Notify([]string{peer.ConnectionID}, event, &types.PeerNotice{
			RoomID:     r.ID,
			ClientInfo: slot.ClientInfo,
		})
	}
	if role == types.RoleInterviewer {
		g.router.PushMetrics(r)
	}

	logrus.WithFields(logrus.Fields{
		"room_id": r.ID,
		"role":    role,
		"conn_id": connID,
	}).Info("Participant joined")
	return &snapshot, nil
}

// resolve finds the room for a join, auto-creating it for an interviewer
// only when configured to
func (g *Gateway) resolve(roomID string, role types.Role) (*room.Room, error) {
	if r, ok := g.store.Get(roomID); ok {
		return r, nil
	}
	if role != types.RoleInterviewer || !g.opts.InterviewerAutoCreate {
		return nil, interfaces.ErrRoomNotFound
	}

	r, err := g.store.Create(roomID)
	if errors.Is(err, room.ErrDuplicateRoom) {
		// Lost a race with another creator
		if existing, ok := g.store.Get(roomID); ok {
			return existing, nil
		}
		return nil, interfaces.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	g.archive.RecordRoomCreated(r.ID, r.CreatedAt)
	logrus.WithField("room_id", roomID).Info("Room auto-created for interviewer")
	return r, nil
}

// Disconnect marks the connection's seat absent. Safe to call for
// connections that never joined and safe to call twice.
func (g *Gateway) Disconnect(connID string) {
	roomID, ok := g.store.Lookup(connID)
	if !ok {
		return
	}
	r, ok := g.store.Get(roomID)
	if !ok {
		g.store.Unbind(connID, roomID)
		return
	}

	r.Lock()
	defer r.Unlock()

	g.store.Unbind(connID, roomID)
	if r.Ended() {
		return
	}

	role, ok := r.BoundRole(connID)
	if !ok {
		return
	}
	slot := r.Slot(role)
	if !slot.Present {
		return
	}

	// The id stays in the seat so a reconnection can replace it cleanly
	slot.Present = false
	r.Touch(g.now())

	notice := &types.RoomNotice{RoomID: r.ID}
	switch role {
	case types.RoleInterviewee:
		r.Metrics = nil
		if r.Interviewer.Present {
			to := []string{r.Interviewer.ConnectionID}
			g.router.Notify(to, types.EventIntervieweeLeft, notice)
			g.router.Notify(to, types.EventMonitoringStopped, notice)
		}
	case types.RoleInterviewer:
		if r.Interviewee.Present {
			g.router.Notify([]string{r.Interviewee.ConnectionID}, types.EventInterviewerDisconnected, notice)
		}
	}

	logrus.WithFields(logrus.Fields{
		"room_id": r.ID,
		"role":    role,
		"conn_id": connID,
	}).Info("Participant disconnected")

	if r.BothAbsent() {
		g.deletions.Arm(r.ID)
	}
}

// expire runs when a grace period ends with nobody back
func (g *Gateway) expire(roomID string) {
	r, ok := g.store.Get(roomID)
	if !ok {
		return
	}

	r.Lock()
	defer r.Unlock()

	// TECHNICAL DISCOVERY: a reconnection may have won the race with the timer
	if r.Ended() || !r.BothAbsent() {
		return
	}
	g.closeLocked(r, types.CloseReasonGracePeriodExpired)
}

// EndSession lets the present interviewer terminate the room immediately,
// bypassing the grace period
func (g *Gateway) EndSession(connID string, p *types.EndSessionPayload) error {
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		bound, ok := g.store.Lookup(connID)
		if !ok {
			return interfaces.ErrNotInRoom
		}
		roomID = bound
	}

	r, ok := g.store.Get(roomID)
	if !ok {
		return interfaces.ErrRoomNotFound
	}

	r.Lock()
	defer r.Unlock()

	if r.Ended() {
		return interfaces.ErrRoomNotFound
	}
	if role, ok := r.PresentRole(connID); !ok || role != types.RoleInterviewer {
		return interfaces.NewNotice(interfaces.ErrUnauthorized, msgInterviewerOnly)
	}

	present := g.closeLocked(r, types.CloseReasonEndedByInterviewer)
	g.router.Notify(present, types.EventRoomEnded, &types.RoomNotice{
		RoomID: r.ID,
		Reason: reasonEndedByHost,
	})
	return nil
}

// closeLocked moves r to Ended, removes it from the store and cancels its
// timers. It returns the connections that were present. Caller holds the lock.
func (g *Gateway) closeLocked(r *room.Room, reason string) []string {
	present := r.PresentConnections("")

	r.State = types.StateEnded
	r.Interviewer.Present = false
	r.Interviewee.Present = false

	g.deletions.Cancel(r.ID)
	g.router.CancelEditorReset(r.ID)
	g.store.DeleteIf(r.ID, r)
	g.archive.RecordRoomClosed(r.ID, reason, g.now(), len(r.ChatLog))

	logrus.WithFields(logrus.Fields{
		"room_id": r.ID,
		"reason":  reason,
	}).Info("Room closed")
	return present
}

// SweepIdle removes rooms past the maximum age, and empty rooms idle past
// the idle limit. It is the reaper's backstop for leaked rooms.
func (g *Gateway) SweepIdle(now time.Time) int {
	removed := 0
	g.store.ForEach(func(r *room.Room) {
		r.Lock()
		defer r.Unlock()

		if r.Ended() {
			return
		}

		var reason string
		switch {
		case now.Sub(r.CreatedAt) > g.opts.MaxRoomAge:
			reason = types.CloseReasonMaxAgeExceeded
		case r.BothAbsent() && now.Sub(r.LastActivityAt) > g.opts.MaxIdle:
			reason = types.CloseReasonIdle
		default:
			return
		}

		present := g.closeLocked(r, reason)
		g.router.Notify(present, types.EventRoomEnded, &types.RoomNotice{
			RoomID: r.ID,
			Reason: reasonSessionExpiry,
		})
		removed++
	})
	return removed
}

// Authorize checks a side-channel secret against the room's
func (g *Gateway) Authorize(roomID, secret string) error {
	r, ok := g.store.Get(roomID)
	if !ok {
		return interfaces.ErrRoomNotFound
	}
	if !r.VerifySecret(secret) {
		return interfaces.ErrUnauthorized
	}
	return nil
}

// RoomStatus returns the presence summary of a live room
func (g *Gateway) RoomStatus(roomID string) (types.RoomStatus, error) {
	r, ok := g.store.Get(roomID)
	if !ok {
		return types.RoomStatus{}, interfaces.ErrRoomNotFound
	}

	r.Lock()
	defer r.Unlock()
	if r.Ended() {
		return types.RoomStatus{}, interfaces.ErrRoomNotFound
	}
	status := r.Status()
	status.PendingDeletion = g.PendingDeletion(r.ID)
	return status, nil
}

// PendingDeletion reports whether roomID is inside its grace period
func (g *Gateway) PendingDeletion(roomID string) bool {
	return g.deletions.Pending(roomID)
}

// Shutdown closes every live room, notifying whoever is still present,
// and disarms all deletion timers
func (g *Gateway) Shutdown() {
	if g.stopped.Swap(true) {
		return
	}

	g.store.ForEach(func(r *room.Room) {
		r.Lock()
		defer r.Unlock()
		if r.Ended() {
			return
		}
		present := g.closeLocked(r, types.CloseReasonShutdown)
		g.router.Notify(present, types.EventRoomEnded, &types.RoomNotice{
			RoomID: r.ID,
			Reason: reasonShutdown,
		})
	})
	g.deletions.Stop()
}

// GetStats returns gateway statistics for monitoring
func (g *Gateway) GetStats() map[string]int {
	stats := g.store.GetStats()
	stats["pending_deletions"] = g.deletions.Len()
	return stats
}

type noopArchive struct{}

func (noopArchive) RecordRoomCreated(string, time.Time)                    {}
func (noopArchive) RecordRoomStarted(string, time.Time, *types.ClientInfo) {}
func (noopArchive) RecordRoomClosed(string, string, time.Time, int)        {}
