package integration

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"trueinterview/internal/app"
	"trueinterview/internal/config"
)

const eventTimeout = 2 * time.Second

// event is an outbound envelope with its payload left raw
type event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// testServer is a fully wired application listening on a loopback port
type testServer struct {
	app    *app.Application
	config *config.Config
	base   string
}

func startServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.HTTP.Mode = "test"
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "integration.db")
	for _, fn := range mutate {
		fn(cfg)
	}

	application, err := app.NewApplication(cfg)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	srv := &testServer{app: application, config: cfg, base: application.Addr()}
	t.Cleanup(func() { srv.stop(t) })
	return srv
}

func (s *testServer) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.Stop(ctx); err != nil && err != app.ErrNotStarted {
		t.Logf("Failed to stop application: %v", err)
	}
}

func (s *testServer) url(path string) string {
	return "http://" + s.base + path
}

// client is a websocket participant that queues every event it receives
type client struct {
	t      *testing.T
	conn   *gorilla.Conn
	events chan event
}

func (s *testServer) dial(t *testing.T) *client {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+s.base+"/ws", nil)
	require.NoError(t, err)

	c := &client{t: t, conn: conn, events: make(chan event, 64)}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *client) readLoop() {
	defer close(c.events)
	for {
		var ev event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		c.events <- ev
	}
}

func (c *client) send(eventType string, data interface{}) {
	c.t.Helper()
	frame := map[string]interface{}{"type": eventType}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

// expect skips events until one of eventType arrives and decodes it into out
func (c *client) expect(eventType string, out interface{}) event {
	c.t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.t.Fatalf("Connection closed while waiting for %s", eventType)
			}
			if ev.Type != eventType {
				continue
			}
			if out != nil {
				require.NoError(c.t, json.Unmarshal(ev.Data, out))
			}
			return ev
		case <-deadline:
			c.t.Fatalf("Timed out waiting for %s", eventType)
		}
	}
}

// expectNone asserts no event of eventType arrives within wait
func (c *client) expectNone(eventType string, wait time.Duration) {
	c.t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			if ev.Type == eventType {
				c.t.Fatalf("Unexpected %s event: %s", eventType, ev.Data)
			}
		case <-deadline:
			return
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
