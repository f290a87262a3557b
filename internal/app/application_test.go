package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trueinterview/internal/config"
	"trueinterview/internal/database"
	"trueinterview/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 1
	cfg.HTTP.Mode = "test"
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "app.db")
	return cfg
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rooms.GracePeriod = 0

	_, err := NewApplication(cfg)
	assert.Error(t, err)
}

func TestApplication_StopBeforeStart(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	require.NoError(t, err)

	assert.ErrorIs(t, application.Stop(context.Background()), ErrNotStarted)
	assert.NoError(t, application.dbManager.Close())
}

// ARCHITECTURAL VALIDATION TEST: the wired application serves health and the socket on one listener
func TestApplication_StartServeStop(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	// Port 0 picks a free port
	application.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, application.Start(ctx))

	base := "http://" + application.Addr()
	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "archive", "health carries the archive writer stats")

	client, _, err := gorilla.DefaultDialer.Dial("ws://"+application.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteJSON(map[string]interface{}{"type": types.EventCreateRoom}))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var created struct {
		Type string            `json:"type"`
		Data types.RoomCreated `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&created))
	assert.Equal(t, types.EventRoomCreated, created.Type)
	assert.Len(t, created.Data.RoomID, 6)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, application.Stop(stopCtx))

	select {
	case err, ok := <-application.Done():
		assert.False(t, ok && err != nil, "serve loop should exit cleanly")
	case <-time.After(2 * time.Second):
		t.Fatal("HTTP server did not stop")
	}

	// Shutdown closes the room and the archive flushes it before closing
	reopened, err := database.NewManager(application.config.Database)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	record, err := reopened.GetRoomRecord(context.Background(), created.Data.RoomID)
	require.NoError(t, err)
	assert.Equal(t, types.RecordStatusCompleted, record.Status)
	assert.Equal(t, types.CloseReasonShutdown, record.EndReason)
}
