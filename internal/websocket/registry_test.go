package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookupUnregister(t *testing.T) {
	registry := NewRegistry()
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 10, time.Second)
	defer conn.Close()

	require.NoError(t, registry.RegisterConnection(conn))

	found, ok := registry.Lookup(conn.ID())
	require.True(t, ok)
	assert.Equal(t, conn.ID(), found.ID())
	assert.Equal(t, 1, registry.GetStats()["total_connections"])

	registry.UnregisterConnection(conn)
	registry.UnregisterConnection(conn)
	_, ok = registry.Lookup(conn.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, registry.GetStats()["total_connections"])
}

func TestRegistry_NilConnection(t *testing.T) {
	registry := NewRegistry()
	assert.ErrorIs(t, registry.RegisterConnection(nil), ErrNilConnection)
	registry.UnregisterConnection(nil)
}

// FUNCTIONAL VALIDATION TEST: a lookup miss returns a true nil interface
func TestRegistry_LookupMissIsNil(t *testing.T) {
	registry := NewRegistry()
	conn, ok := registry.Lookup("missing")
	assert.False(t, ok)
	assert.Nil(t, conn)
}

// TECHNICAL VALIDATION TEST: a replaced instance cannot unregister its replacement
func TestRegistry_ReplacementSurvivesStaleUnregister(t *testing.T) {
	registry := NewRegistry()
	serverA, _ := newSocketPair(t)
	serverB, _ := newSocketPair(t)

	original := NewConnection(serverA, 10, time.Second)
	replacement := NewConnection(serverB, 10, time.Second)
	replacement.id = original.id
	defer replacement.Close()

	require.NoError(t, registry.RegisterConnection(original))
	require.NoError(t, registry.RegisterConnection(replacement))

	require.Eventually(t, func() bool {
		return original.Context().Err() != nil
	}, time.Second, 5*time.Millisecond, "replaced connection is closed")

	registry.UnregisterConnection(original)
	found, ok := registry.Lookup(original.ID())
	require.True(t, ok)
	assert.Same(t, replacement, found)
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry()
	var conns []*Connection
	for i := 0; i < 3; i++ {
		server, _ := newSocketPair(t)
		conn := NewConnection(server, 10, time.Second)
		conns = append(conns, conn)
		require.NoError(t, registry.RegisterConnection(conn))
	}

	registry.CloseAll()
	for _, conn := range conns {
		assert.ErrorIs(t, conn.WriteJSON("x"), ErrConnectionClosed)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		conn := &Connection{id: fmt.Sprintf("conn-%d", i)}
		go func() {
			defer wg.Done()
			_ = registry.RegisterConnection(conn)
		}()
		go func() {
			defer wg.Done()
			registry.Lookup(conn.ID())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, registry.GetStats()["total_connections"])
}
