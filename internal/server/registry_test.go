package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry(t *testing.T) {
	reg := NewSessionRegistry()
	reg.Attach("conn-1", 7)

	userId, ok := reg.UserOf("conn-1")
	assert.True(t, ok)
	assert.Equal(t, 7, userId)

	_, ok = reg.RoomOf("conn-1")
	assert.False(t, ok, "expected no room before join")

	prev, ok := reg.JoinRoom("conn-1", "A", 1)
	assert.True(t, ok)
	assert.Empty(t, prev)

	prev, ok = reg.JoinRoom("conn-1", "B", 2)
	assert.True(t, ok)
	assert.Equal(t, "A", prev)

	assert.False(t, reg.LeaveRoom("conn-1", "A"), "leaving a room the connection already left should be a no-op")
	room, ok := reg.RoomOf("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "B", room)

	assert.True(t, reg.LeaveRoom("conn-1", "B"))
	_, ok = reg.RoomOf("conn-1")
	assert.False(t, ok)

	reg.JoinRoom("conn-1", "C", 3)
	assert.Equal(t, "C", reg.Detach("conn-1"))
	assert.Empty(t, reg.Detach("conn-1"))
	assert.Equal(t, 0, reg.Len())
}

func TestSessionRegistryUnknownConnection(t *testing.T) {
	reg := NewSessionRegistry()

	_, ok := reg.JoinRoom("missing", "A", 1)
	assert.False(t, ok)
	assert.False(t, reg.LeaveRoom("missing", "A"))
	_, ok = reg.UserOf("missing")
	assert.False(t, ok)
	_, ok = reg.RoomOf("missing")
	assert.False(t, ok)
	assert.Empty(t, reg.Detach("missing"))
}

func TestSessionRegistryMultipleConnections(t *testing.T) {
	reg := NewSessionRegistry()
	reg.Attach("tab-1", 1)
	reg.Attach("tab-2", 1)
	reg.JoinRoom("tab-1", "A", 1)
	reg.JoinRoom("tab-2", "B", 1)

	assert.Equal(t, 2, reg.Len())
	room, _ := reg.RoomOf("tab-1")
	assert.Equal(t, "A", room)
	room, _ = reg.RoomOf("tab-2")
	assert.Equal(t, "B", room)

	reg.Detach("tab-1")
	room, ok := reg.RoomOf("tab-2")
	assert.True(t, ok)
	assert.Equal(t, "B", room)
}

func TestSessionRegistryIgnoresOlderJoin(t *testing.T) {
	reg := NewSessionRegistry()
	reg.Attach("conn-1", 7)

	_, ok := reg.JoinRoom("conn-1", "A", 3)
	assert.True(t, ok)

	_, ok = reg.JoinRoom("conn-1", "B", 2)
	assert.False(t, ok, "expected an older join to be ignored")

	room, _ := reg.RoomOf("conn-1")
	assert.Equal(t, "A", room)
}
