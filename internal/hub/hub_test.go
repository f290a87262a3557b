package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trueinterview/internal/room"
	"trueinterview/internal/router"
	"trueinterview/internal/scheduler"
	"trueinterview/internal/session"
	"trueinterview/internal/testutil"
	"trueinterview/pkg/types"
)

type hubEnv struct {
	hub      *Hub
	gateway  *session.Gateway
	registry *testutil.Registry
}

func newHubEnv(t *testing.T, routerOpts router.Options) *hubEnv {
	t.Helper()

	store := room.NewStore()
	registry := testutil.NewRegistry()
	rt := router.NewRouter(store, registry, routerOpts)
	gw := session.NewGateway(store, rt, nil, session.Options{GracePeriod: time.Hour})
	h := NewHub(gw, rt, nil)

	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() {
		_ = h.Stop()
		gw.Shutdown()
		rt.Stop()
	})
	return &hubEnv{hub: h, gateway: gw, registry: registry}
}

func (e *hubEnv) conn(id string) *testutil.Conn {
	c := testutil.NewConn(id)
	e.registry.Add(c)
	return c
}

func frame(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"type": eventType, "data": data})
	require.NoError(t, err)
	return raw
}

func lastError(t *testing.T, c *testutil.Conn) types.ErrorPayload {
	t.Helper()
	ev, ok := c.Last(types.EventError)
	require.True(t, ok, "expected an error event, got %v", c.Types())
	var payload types.ErrorPayload
	require.NoError(t, ev.Decode(&payload))
	return payload
}

// TestHub_StartStop tests functional validation - hub lifecycle management
func TestHub_StartStop(t *testing.T) {
	store := room.NewStore()
	rt := router.NewRouter(store, testutil.NewRegistry(), router.Options{})
	gw := session.NewGateway(store, rt, nil, session.Options{})
	reaper := scheduler.NewReaper(time.Hour, gw.SweepIdle)
	h := NewHub(gw, rt, reaper)

	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	assert.ErrorIs(t, h.Start(ctx), ErrHubAlreadyRunning)
	require.NoError(t, h.Stop())
	assert.ErrorIs(t, h.Stop(), ErrHubNotRunning)

	// Restartable
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Stop())
}

// FUNCTIONAL VALIDATION TEST: a full interview over dispatched frames
func TestHub_InterviewFlow(t *testing.T) {
	e := newHubEnv(t, router.Options{EditorIdleTimeout: time.Hour})
	ctx := context.Background()
	interviewer := e.conn("iv")
	interviewee := e.conn("ie")

	e.hub.Dispatch(ctx, interviewer, frame(t, types.EventCreateRoom, nil))
	ev, ok := interviewer.Last(types.EventRoomCreated)
	require.True(t, ok)
	var created types.RoomCreated
	require.NoError(t, ev.Decode(&created))

	e.hub.Dispatch(ctx, interviewee, frame(t, types.EventJoinSession, map[string]string{"roomId": created.RoomID, "role": "interviewee"}))
	assert.Equal(t, 1, interviewee.Count(types.EventSessionJoined))
	assert.Equal(t, 1, interviewer.Count(types.EventIntervieweeJoined))

	e.hub.Dispatch(ctx, interviewee, frame(t, types.EventCodeUpdate, map[string]string{"roomId": created.RoomID, "code": "x = 1"}))
	assert.Equal(t, 1, interviewer.Count(types.EventCodeUpdate))

	e.hub.Dispatch(ctx, interviewer, frame(t, types.EventChatMessage, map[string]string{"roomId": created.RoomID, "message": "ready?"}))
	assert.Equal(t, 1, interviewer.Count(types.EventChatMessage))
	assert.Equal(t, 1, interviewee.Count(types.EventChatMessage))

	e.hub.Dispatch(ctx, interviewee, frame(t, types.EventHandleMetrics, map[string]bool{"cluely": true}))
	assert.Equal(t, 1, interviewer.Count(types.EventProcessUpdate))
	assert.Equal(t, 0, interviewee.Count(types.EventProcessUpdate))

	e.hub.Dispatch(ctx, interviewer, frame(t, types.EventEndSession, map[string]string{"roomId": created.RoomID}))
	assert.Equal(t, 1, interviewee.Count(types.EventRoomEnded))
	assert.Equal(t, 1, interviewer.Count(types.EventRoomEnded))
	assert.Empty(t, interviewer.Count(types.EventError))
}

func TestHub_RoomNotFoundCarriesRoomID(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	c := e.conn("c1")

	e.hub.Dispatch(context.Background(), c, frame(t, types.EventJoinSession, map[string]string{"roomId": "ZZ99ZZ", "role": "interviewee"}))

	ev, ok := c.Last(types.EventRoomNotFound)
	require.True(t, ok)
	var notice types.RoomNotice
	require.NoError(t, ev.Decode(&notice))
	assert.Equal(t, "ZZ99ZZ", notice.RoomID)
}

func TestHub_RoomFull(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	ctx := context.Background()
	host := e.conn("host")
	first := e.conn("first")
	second := e.conn("second")

	created, err := e.gateway.CreateRoom(host.ID())
	require.NoError(t, err)

	join := frame(t, types.EventJoinSession, map[string]string{"roomId": created.RoomID, "role": "interviewee"})
	e.hub.Dispatch(ctx, first, join)
	e.hub.Dispatch(ctx, second, join)

	assert.Equal(t, 1, second.Count(types.EventRoomFull))
	assert.Equal(t, 0, second.Count(types.EventSessionJoined))
}

// FUNCTIONAL VALIDATION TEST: failures become structured error events
func TestHub_ErrorEvents(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	ctx := context.Background()
	c := e.conn("c1")

	cases := []struct {
		name  string
		frame []byte
		code  string
	}{
		{"garbage", []byte("not json"), CodeMalformedPayload},
		{"missing type", []byte(`{"data":{}}`), CodeMalformedPayload},
		{"unknown event", frame(t, "launch-missiles", nil), CodeUnknownEvent},
		{"bad payload shape", []byte(`{"type":"join-session","data":"AB12CD"}`), CodeMalformedPayload},
		{"missing payload", []byte(`{"type":"chat-message"}`), CodeMalformedPayload},
		{"not in room", frame(t, types.EventChatMessage, map[string]string{"message": "hi"}), CodeNotInRoom},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.Reset()
			e.hub.Dispatch(ctx, c, tc.frame)
			assert.Equal(t, tc.code, lastError(t, c).Code)
		})
	}
}

// FUNCTIONAL VALIDATION TEST: refused metrics pulls are answered in-band, not as errors
func TestHub_UnauthorizedMetricsMessage(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	ctx := context.Background()
	c := e.conn("c1")

	e.hub.Dispatch(ctx, c, frame(t, types.EventRequestMetrics, map[string]string{"roomId": "AB12CD", "role": "interviewee"}))
	ev, ok := c.Last(types.EventProcessUpdate)
	require.True(t, ok)
	assert.JSONEq(t, `{"roomId":"AB12CD","data":{"message":"System metrics are only available to interviewers"}}`, string(ev.Data))

	e.hub.Dispatch(ctx, c, frame(t, types.EventRequestMetrics, map[string]string{"roomId": "", "role": "interviewer"}))
	ev, ok = c.Last(types.EventProcessUpdate)
	require.True(t, ok)
	assert.JSONEq(t, `{"roomId":"invalid","data":{"message":"Invalid room ID provided"}}`, string(ev.Data))

	assert.Equal(t, 2, c.Count(types.EventProcessUpdate))
	assert.Equal(t, 0, c.Count(types.EventError))
}

// TECHNICAL VALIDATION TEST: a panicking handler is contained and reported generically
func TestHub_PanicIsContained(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	ctx := context.Background()
	c := e.conn("c1")
	bystander := e.conn("c2")

	e.hub.handlers["boom"] = func(*Hub, string, json.RawMessage) error { panic("kaboom") }
	e.hub.handlers["fail"] = func(*Hub, string, json.RawMessage) error { return errors.New("disk on fire") }

	require.NotPanics(t, func() { e.hub.Dispatch(ctx, c, frame(t, "boom", nil)) })
	payload := lastError(t, c)
	assert.Equal(t, CodeInternal, payload.Code)
	assert.Equal(t, "Internal server error", payload.Message)

	c.Reset()
	e.hub.Dispatch(ctx, c, frame(t, "fail", nil))
	payload = lastError(t, c)
	assert.Equal(t, CodeInternal, payload.Code)
	assert.NotContains(t, payload.Message, "disk")

	assert.Empty(t, bystander.Events())

	// The hub keeps serving after a panic
	e.hub.Dispatch(ctx, c, frame(t, types.EventCreateRoom, nil))
	assert.Equal(t, 1, c.Count(types.EventRoomCreated))
}

func TestHub_RateLimited(t *testing.T) {
	e := newHubEnv(t, router.Options{RateLimit: 2, RateWindow: time.Hour})
	ctx := context.Background()
	c := e.conn("c1")

	for i := 0; i < 3; i++ {
		e.hub.Dispatch(ctx, c, frame(t, types.EventChatMessage, map[string]string{"message": "spam"}))
	}
	assert.Equal(t, CodeRateLimited, lastError(t, c).Code)

	// A disconnect resets the window
	e.hub.Disconnect(c.ID())
	c.Reset()
	e.hub.Dispatch(ctx, c, frame(t, types.EventCreateRoom, nil))
	assert.Equal(t, 1, c.Count(types.EventRoomCreated))
}

func TestHub_RejectsWhenStopped(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	c := e.conn("c1")
	require.NoError(t, e.hub.Stop())

	e.hub.Dispatch(context.Background(), c, frame(t, types.EventCreateRoom, nil))
	assert.Equal(t, CodeUnavailable, lastError(t, c).Code)
	assert.Equal(t, 0, c.Count(types.EventRoomCreated))
}

func TestHub_DisconnectUpdatesPresence(t *testing.T) {
	e := newHubEnv(t, router.Options{})
	ctx := context.Background()
	interviewer := e.conn("iv")
	interviewee := e.conn("ie")

	created, err := e.gateway.CreateRoom(interviewer.ID())
	require.NoError(t, err)
	e.hub.Dispatch(ctx, interviewee, frame(t, types.EventJoinSession, map[string]string{"roomId": created.RoomID, "role": "interviewee"}))

	e.hub.Disconnect(interviewee.ID())
	assert.Equal(t, 1, interviewer.Count(types.EventIntervieweeLeft))
	assert.Equal(t, 1, interviewer.Count(types.EventMonitoringStopped))

	e.hub.Disconnect(interviewer.ID())
	assert.True(t, e.gateway.PendingDeletion(created.RoomID))
	assert.Equal(t, 1, e.hub.GetStats()["pending_deletions"])
}
