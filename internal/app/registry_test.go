package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

func TestRegistryRegisterAndSnapshot(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)

	u := &domain.User{ID: "u1", Username: "sara"}
	r.Register("u1", "c1", u)
	r.Register("u1", "c2", nil) // second tab, profile already cached

	snap, ok := r.Snapshot("u1")
	require.True(t, ok)
	assert.Equal(t, "sara", snap.User.Username)
	assert.False(t, snap.ProfileStale)
	assert.Len(t, snap.Sockets, 2)
	assert.Equal(t, clock.Now(), snap.LastSeen)

	// Snapshot must be a copy: mutating it never leaks into the registry.
	snap.User.Username = "mallory"
	again, _ := r.Snapshot("u1")
	assert.Equal(t, "sara", again.User.Username)
}

func TestRegistryPlaceholderProfileRepair(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", nil)

	snap, ok := r.Snapshot("u1")
	require.True(t, ok)
	assert.True(t, snap.ProfileStale)
	assert.Equal(t, "guest", snap.User.Username)

	r.RepairProfile("u1", &domain.User{ID: "u1", Username: "sara", Level: 3})
	snap, _ = r.Snapshot("u1")
	assert.False(t, snap.ProfileStale)
	assert.Equal(t, "sara", snap.User.Username)
}

func TestRegistryUnregisterKeepsEntry(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})
	r.SetRoom("u1", "c1", "general")

	room, remaining, ok := r.Unregister("u1", "c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("general"), room)
	assert.Equal(t, 0, remaining)

	// Entry survives at zero connections; the departure timer finalizes.
	snap, ok := r.Snapshot("u1")
	require.True(t, ok)
	assert.Empty(t, snap.Sockets)
	assert.Equal(t, domain.RoomID("general"), snap.LastRoom)
}

func TestRegistryRemoveOnlyWhenEmpty(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})

	_, removed := r.Remove("u1")
	assert.False(t, removed, "must not remove an entry with live connections")

	r.Unregister("u1", "c1")
	room, removed := r.Remove("u1")
	assert.True(t, removed)
	assert.Equal(t, domain.RoomID(""), room)

	_, ok := r.Snapshot("u1")
	assert.False(t, ok)
}

func TestRegistryClearRoomIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})
	r.SetRoom("u1", "c1", "general")

	assert.True(t, r.ClearRoom("u1", "c1", "general"))
	assert.False(t, r.ClearRoom("u1", "c1", "general"), "second clear is a no-op")
	assert.False(t, r.ClearRoom("u1", "c1", "sports"), "mismatched room is a no-op")
}

func TestRegistryClearRoomResetsLastRoom(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})
	r.SetRoom("u1", "c1", "general")
	require.True(t, r.ClearRoom("u1", "c1", "general"))

	r.Unregister("u1", "c1")
	snap, ok := r.Snapshot("u1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID(""), snap.LastRoom, "an explicit leave wipes the grace-window room")
}

func TestRegistryRoomOf(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})

	_, ok := r.RoomOf("u1")
	assert.False(t, ok, "no room until an explicit join")

	r.SetRoom("u1", "c1", "general")
	room, ok := r.RoomOf("u1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("general"), room)
}

func TestRegistryTouchUpdatesLastSeen(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})

	before := clock.Now()
	clock.Advance(time.Minute)
	require.True(t, r.Touch("u1"))

	snap, _ := r.Snapshot("u1")
	assert.Equal(t, before.Add(time.Minute), snap.LastSeen)
}

func TestRegistryConcurrentMutationsOneUser(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("u1", "c1", &domain.User{ID: "u1", Username: "sara"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.SetRoom("u1", "c1", domain.RoomID(fmt.Sprintf("room-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			r.Touch("u1")
		}()
	}
	wg.Wait()

	snap, ok := r.Snapshot("u1")
	require.True(t, ok)
	assert.Len(t, snap.Sockets, 1)
	room := snap.Sockets[core.ConnID("c1")].Room
	assert.NotEmpty(t, room, "one of the writes must have won")
}
