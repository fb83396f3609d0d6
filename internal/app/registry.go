package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// SocketInfo describes one physical connection of a user. An empty Room
// means the connection is admitted but has not joined anywhere yet.
type SocketInfo struct {
	Room     domain.RoomID
	LastSeen time.Time
}

// EntrySnapshot is a copy of one user's registry state, safe to read
// without holding any lock.
type EntrySnapshot struct {
	User         *domain.User
	Sockets      map[core.ConnID]SocketInfo
	LastSeen     time.Time
	LastRoom     domain.RoomID
	ProfileStale bool
}

// connEntry holds the live state for one logical user. Its mutex serializes
// every mutation for that user so concurrent events (a room switch racing an
// avatar update) apply in arrival order, while other users proceed in
// parallel.
type connEntry struct {
	mu           sync.Mutex
	user         *domain.User
	profileStale bool
	sockets      map[core.ConnID]*SocketInfo
	lastSeen     time.Time
	lastRoom     domain.RoomID
}

// Registry is the source of truth for user -> connections -> room. It is an
// injected service instance, constructed in main and torn down at shutdown,
// never a package global.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.UserID]*connEntry
	clock   func() time.Time
}

func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		entries: make(map[domain.UserID]*connEntry),
		clock:   clock,
	}
}

func (r *Registry) getOrCreate(uid domain.UserID) *connEntry {
	r.mu.RLock()
	e, ok := r.entries[uid]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[uid]; ok {
		return e
	}
	e = &connEntry{sockets: make(map[core.ConnID]*SocketInfo)}
	r.entries[uid] = e
	return e
}

func (r *Registry) get(uid domain.UserID) (*connEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uid]
	return e, ok
}

// Register adds a connection with no room. A nil profile leaves a minimal
// placeholder that gets repaired on the next read that can fetch one.
func (r *Registry) Register(uid domain.UserID, cid core.ConnID, profile *domain.User) {
	now := r.clock()
	e := r.getOrCreate(uid)
	e.mu.Lock()
	defer e.mu.Unlock()
	if profile != nil {
		e.user = profile.Clone()
		e.profileStale = false
	} else if e.user == nil {
		e.user = &domain.User{ID: uid, Username: "guest", Role: domain.RoleMember}
		e.profileStale = true
	}
	e.sockets[cid] = &SocketInfo{LastSeen: now}
	e.lastSeen = now
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(cid)).Msg("registered connection")
}

// Unregister removes one connection. It never deletes the entry itself, even
// at zero connections: the departure timer owns finalization.
func (r *Registry) Unregister(uid domain.UserID, cid core.ConnID) (room domain.RoomID, remaining int, ok bool) {
	e, found := r.get(uid)
	if !found {
		return "", 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, found := e.sockets[cid]
	if !found {
		return "", len(e.sockets), false
	}
	room = s.Room
	delete(e.sockets, cid)
	if room != "" {
		e.lastRoom = room
	}
	e.lastSeen = r.clock()
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(cid)).Int("remaining", len(e.sockets)).Msg("unregistered connection")
	return room, len(e.sockets), true
}

// Remove deletes the entry, but only if no connections remain. Called by the
// departure finalizer; returns the last room the user occupied.
func (r *Registry) Remove(uid domain.UserID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[uid]
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sockets) > 0 {
		return "", false
	}
	delete(r.entries, uid)
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("entry removed")
	return e.lastRoom, true
}

// Touch records activity across all of the user's connections.
func (r *Registry) Touch(uid domain.UserID) bool {
	e, ok := r.get(uid)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = r.clock()
	return true
}

// SetRoom moves one connection into a room and returns the room it was in.
func (r *Registry) SetRoom(uid domain.UserID, cid core.ConnID, room domain.RoomID) (prev domain.RoomID, ok bool) {
	e, found := r.get(uid)
	if !found {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, found := e.sockets[cid]
	if !found {
		return "", false
	}
	prev = s.Room
	s.Room = room
	s.LastSeen = r.clock()
	e.lastSeen = s.LastSeen
	if room != "" {
		e.lastRoom = room
	}
	return prev, true
}

// ClearRoom clears the connection's room only if it still matches. This is
// what makes leave idempotent: a second call finds no match and no-ops. It
// also wipes lastRoom: a user who left explicitly was in no room, so a later
// disconnect must not resurrect them there during the grace window.
func (r *Registry) ClearRoom(uid domain.UserID, cid core.ConnID, room domain.RoomID) bool {
	e, found := r.get(uid)
	if !found {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, found := e.sockets[cid]
	if !found || s.Room != room {
		return false
	}
	s.Room = ""
	e.lastRoom = ""
	e.lastSeen = r.clock()
	return true
}

// RepairProfile replaces a placeholder profile. A fresh profile also wins
// over a stale cached one, so opportunistic refreshes go through here too.
func (r *Registry) RepairProfile(uid domain.UserID, profile *domain.User) {
	if profile == nil {
		return
	}
	e, ok := r.get(uid)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.user = profile.Clone()
	e.profileStale = false
}

// ConnCount reports how many live connections the user holds.
func (r *Registry) ConnCount(uid domain.UserID) int {
	e, ok := r.get(uid)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sockets)
}

// Snapshot copies one entry out of the registry.
func (r *Registry) Snapshot(uid domain.UserID) (EntrySnapshot, bool) {
	e, ok := r.get(uid)
	if !ok {
		return EntrySnapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotLocked(e), true
}

func snapshotLocked(e *connEntry) EntrySnapshot {
	snap := EntrySnapshot{
		User:         e.user.Clone(),
		Sockets:      make(map[core.ConnID]SocketInfo, len(e.sockets)),
		LastSeen:     e.lastSeen,
		LastRoom:     e.lastRoom,
		ProfileStale: e.profileStale,
	}
	for cid, s := range e.sockets {
		snap.Sockets[cid] = *s
	}
	return snap
}

// ScanAll snapshots every entry. The presence builder filters from here.
func (r *Registry) ScanAll() []EntrySnapshot {
	r.mu.RLock()
	entries := make([]*connEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]EntrySnapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshotLocked(e))
		e.mu.Unlock()
	}
	return out
}

// RoomOf reports the room the user currently occupies, if any connection
// has one.
func (r *Registry) RoomOf(uid domain.UserID) (domain.RoomID, bool) {
	snap, ok := r.Snapshot(uid)
	if !ok {
		return "", false
	}
	for _, s := range snap.Sockets {
		if s.Room != "" {
			return s.Room, true
		}
	}
	return "", false
}
