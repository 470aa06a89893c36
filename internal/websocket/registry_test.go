package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/pkg/types"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	req.ErrorIs(registry.Register(nil), ErrNilConnection)

	conn, _ := newTestConnection(t, "conn-1", 8)
	req.NoError(registry.Register(conn))
	req.ErrorIs(registry.Register(conn), ErrDuplicateConnection)
	req.Equal(1, registry.Count())
}

func TestRegistry_ConnectOrder(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	ids := []types.ConnectionID{"c", "a", "b"}
	for _, id := range ids {
		conn, _ := newTestConnection(t, id, 8)
		req.NoError(registry.Register(conn))
	}

	var got []types.ConnectionID
	for _, conn := range registry.Connections() {
		got = append(got, conn.ID())
	}
	req.Equal(ids, got)
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	conn, _ := newTestConnection(t, "conn-1", 8)
	req.NoError(registry.Register(conn))

	registry.Unregister(conn)
	_, exists := registry.Get("conn-1")
	req.False(exists)
	req.Zero(registry.Count())

	// Idempotent
	registry.Unregister(conn)
	registry.Unregister(nil)
	req.Zero(registry.Count())
}

func TestRegistry_UnregisterOnlyRemovesSameInstance(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	current, _ := newTestConnection(t, "conn-1", 8)
	stale, _ := newTestConnection(t, "conn-1", 8)
	req.NoError(registry.Register(current))

	registry.Unregister(stale)

	got, exists := registry.Get("conn-1")
	req.True(exists)
	req.Same(current, got)
}

func TestRegistry_Deliver(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	connA, clientA := newTestConnection(t, "A", 8)
	connB, clientB := newTestConnection(t, "B", 8)
	req.NoError(registry.Register(connA))
	req.NoError(registry.Register(connB))

	// To everybody
	req.NoError(registry.Deliver(types.ToAll(types.EventUserList, "all")))
	req.Equal("all", readEvent(t, clientA)["data"])
	req.Equal("all", readEvent(t, clientB)["data"])

	// To everybody but A
	req.NoError(registry.Deliver(types.ToAllExcept("A", types.EventUserJoined, "not-a")))
	req.NoError(registry.Deliver(types.ToOne("A", types.EventAck, "only-a")))
	req.Equal("only-a", readEvent(t, clientA)["data"])
	req.Equal("not-a", readEvent(t, clientB)["data"])
}

func TestRegistry_DeliverToMissingConnection(t *testing.T) {
	registry := NewRegistry()

	err := registry.Deliver(types.ToOne("ghost", types.EventAck, nil))
	require.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestRegistry_DeliverSkipsFailedRecipient(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	closed, _ := newTestConnection(t, "closed", 8)
	live, client := newTestConnection(t, "live", 8)
	req.NoError(registry.Register(closed))
	req.NoError(registry.Register(live))
	req.NoError(closed.Close())

	err := registry.Deliver(types.ToAll(types.EventReceiveMessage, "hello"))

	req.ErrorIs(err, ErrConnectionClosed)
	req.Equal("hello", readEvent(t, client)["data"])
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	conns := make([]*Connection, 20)
	for i := range conns {
		conns[i], _ = newTestConnection(t, types.ConnectionID(fmt.Sprintf("conn-%d", i)), 8)
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			_ = registry.Register(c)
			_ = registry.Deliver(types.ToAll(types.EventUserList, nil))
		}(conn)
	}
	wg.Wait()
	req.Equal(len(conns), registry.Count())

	for _, conn := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			registry.Unregister(c)
		}(conn)
	}
	wg.Wait()
	req.Zero(registry.Count())
}

func TestRegistry_CloseAll(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	conn, _ := newTestConnection(t, "conn-1", 8)
	req.NoError(registry.Register(conn))

	registry.CloseAll()

	req.ErrorIs(conn.Send(types.Event{Name: types.EventAck}), ErrConnectionClosed)
}
