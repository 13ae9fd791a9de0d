package chatws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryTracksConnectionsPerUser(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(discardLogger())

	phone, _ := newTestConn()
	laptop, _ := newTestConn()
	other, _ := newTestConn()
	for _, conn := range []*Conn{phone, laptop, other} {
		registry.Register(conn)
	}

	req.Equal(int64(0), registry.UserID(phone))
	req.Empty(registry.ConnectionsFor(7))

	req.True(registry.Authenticate(phone, 7))
	req.True(registry.Authenticate(laptop, 7))
	req.True(registry.Authenticate(other, 9))

	req.ElementsMatch([]*Conn{phone, laptop}, registry.ConnectionsFor(7))
	req.ElementsMatch([]*Conn{other}, registry.ConnectionsFor(9))
	req.Equal(3, registry.Len())

	registry.Deregister(phone)
	req.ElementsMatch([]*Conn{laptop}, registry.ConnectionsFor(7))
	req.Equal(2, registry.Len())
}

func TestRegistryReauthenticationMovesConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(discardLogger())

	conn, _ := newTestConn()
	registry.Register(conn)
	registry.Authenticate(conn, 3)
	registry.Authenticate(conn, 4)

	req.Empty(registry.ConnectionsFor(3))
	req.ElementsMatch([]*Conn{conn}, registry.ConnectionsFor(4))
	req.Equal(int64(4), registry.UserID(conn))
}

func TestRegistryAuthenticateIgnoresUnregisteredConnection(t *testing.T) {
	registry := NewRegistry(discardLogger())
	conn, _ := newTestConn()

	require.False(t, registry.Authenticate(conn, 5))
	require.Empty(t, registry.ConnectionsFor(5))
}

func TestSweepEvictsOnSecondSweepWithoutPong(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(discardLogger())

	conn, transport := newTestConn()
	registry.Register(conn)
	registry.Authenticate(conn, 1)

	registry.Sweep()
	req.Equal(1, transport.pingCount())
	req.False(transport.isClosed())
	req.Equal(1, registry.Len())

	registry.Sweep()
	req.True(transport.isClosed())
	req.True(conn.Closed())
	req.Equal(0, registry.Len())
	req.Empty(registry.ConnectionsFor(1))
}

func TestSweepKeepsConnectionThatAnswers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(discardLogger())

	conn, transport := newTestConn()
	registry.Register(conn)

	for i := 0; i < 5; i++ {
		registry.Sweep()
		registry.MarkAlive(conn)
	}

	req.Equal(5, transport.pingCount())
	req.False(transport.isClosed())
	req.Equal(1, registry.Len())

	// Last pong was after the fifth sweep: one more sweep probes, the next evicts.
	registry.Sweep()
	req.Equal(1, registry.Len())
	registry.Sweep()
	req.Equal(0, registry.Len())
}

func TestSweepToleratesDeregisterFromClose(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(discardLogger())

	stale, staleTransport := newTestConn()
	healthy, _ := newTestConn()
	staleTransport.onClose = func() { registry.Deregister(stale) }
	registry.Register(stale)
	registry.Register(healthy)

	registry.Sweep()
	registry.MarkAlive(healthy)
	registry.Sweep()

	req.True(staleTransport.isClosed())
	req.Equal(1, registry.Len())
}

func TestRegistryCloseClosesEverything(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(discardLogger())

	first, firstTransport := newTestConn()
	second, secondTransport := newTestConn()
	registry.Register(first)
	registry.Register(second)
	registry.Authenticate(second, 2)

	registry.Close()

	req.True(firstTransport.isClosed())
	req.True(secondTransport.isClosed())
	req.Equal(0, registry.Len())
	req.Empty(registry.ConnectionsFor(2))
}
