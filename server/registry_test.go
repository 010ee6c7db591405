package server

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeSession(t *testing.T) *Session {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	return newSession(serverConn, "pipe", "pipe", time.Second)
}

func TestRegistryLastLoginWins(t *testing.T) {
	registry := NewSessionRegistry()

	first := newPipeSession(t)
	first.Username = "alice"
	second := newPipeSession(t)
	second.Username = "alice"

	registry.Track(first)
	replaced := registry.Register("alice", first)
	assert.False(t, replaced)

	registry.Track(second)
	replaced = registry.Register("alice", second)
	assert.True(t, replaced)

	current, ok := registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)

	// The replaced session's teardown must not remove the new entry.
	assert.False(t, registry.Unregister(first))
	current, ok = registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)

	assert.True(t, registry.Unregister(second))
	_, ok = registry.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistryUnbindKeepsHandle(t *testing.T) {
	registry := NewSessionRegistry()

	sess := newPipeSession(t)
	sess.Username = "alice"
	registry.Track(sess)
	registry.Register("alice", sess)

	// Unbind drops the name entry but the connection stays broadcastable.
	assert.True(t, registry.Unbind(sess))
	_, ok := registry.Lookup("alice")
	assert.False(t, ok)
	assert.Equal(t, 1, registry.CountConnections())

	assert.False(t, registry.Unbind(sess))
}

func TestRegistryUnregisterAnonymous(t *testing.T) {
	registry := NewSessionRegistry()

	sess := newPipeSession(t)
	registry.Track(sess)
	assert.Equal(t, 1, registry.CountConnections())

	assert.False(t, registry.Unregister(sess))
	assert.Equal(t, 0, registry.CountConnections())
}

func TestRegistrySnapshots(t *testing.T) {
	registry := NewSessionRegistry()

	anon := newPipeSession(t)
	registry.Track(anon)

	authed := newPipeSession(t)
	authed.Username = "alice"
	registry.Track(authed)
	registry.Register("alice", authed)

	assert.Len(t, registry.AllHandles(), 2)
	assert.Len(t, registry.AuthedHandles(), 1)
	assert.Equal(t, []string{"alice"}, registry.OnlineUsers())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewSessionRegistry()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sess := &Session{ID: uuid.New()}
			registry.Track(sess)
			registry.Unregister(sess)
		}
	}()

	for i := 0; i < 200; i++ {
		registry.AllHandles()
		registry.CountConnections()
	}
	<-done
}
