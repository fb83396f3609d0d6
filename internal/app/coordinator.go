package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// Coordinator orchestrates the join/leave/switch protocol. It composes the
// registry, resume tracker, departure timers and broadcast scheduler, and is
// the only component that talks to the persistence and message
// collaborators.
type Coordinator struct {
	Registry   *Registry
	Resume     *ResumeTracker
	Departures *DepartureTimers
	Scheduler  *BroadcastScheduler
	Rooms      core.RoomDirectory
	Profiles   core.ProfileStore
	Messages   core.MessageStore
	Transport  core.Transport

	// PersistCooldown throttles currentRoom writes per user so bursts of
	// room activity do not thrash storage. The registry stays the
	// immediately-consistent truth regardless.
	PersistCooldown time.Duration
	Clock           func() time.Time

	pmu         sync.Mutex
	lastPersist map[domain.UserID]time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// OnConnect cancels any pending departure for a freshly admitted user.
func (c *Coordinator) OnConnect(uid domain.UserID) {
	if c.Departures.Cancel(uid) {
		log.Debug().Str("module", "app.coordinator").Str("user", string(uid)).Msg("departure cancelled by reconnect")
	}
}

// Join moves the connection into the room. If the connection is already in a
// different room this is a switch: one logical operation whose leave commits
// only after the transport-level join succeeds, so the user is never left in
// neither room. Returns whether the join was a resume (announcement
// suppressed).
func (c *Coordinator) Join(ctx context.Context, uid domain.UserID, cid core.ConnID, device string, room domain.RoomID) (bool, error) {
	active, err := c.Rooms.RoomIsActive(ctx, room)
	if err != nil || !active {
		return false, core.ErrRoomUnavailable
	}

	snap, ok := c.Registry.Snapshot(uid)
	if !ok {
		return false, fmt.Errorf("join: user %s not registered", uid)
	}
	prev := snap.Sockets[cid].Room
	if prev == room {
		// Rejoining the current room never re-announces.
		c.Resume.Consume(uid, device, room)
		return true, nil
	}
	// Another tab may already hold this room; joining again must not
	// duplicate the announcement.
	alreadyPresent := false
	for other, s := range snap.Sockets {
		if other != cid && s.Room == room {
			alreadyPresent = true
			break
		}
	}

	if err := c.Transport.JoinRoom(cid, room); err != nil {
		// Transport join failed: re-invoke leave on the target room at the
		// persistence layer so transport and persistence never diverge.
		if perr := c.Profiles.PersistRoomAssignment(ctx, uid, prev); perr != nil {
			log.Warn().Str("module", "app.coordinator").Err(perr).Msg("rollback persist degraded")
		}
		return false, fmt.Errorf("transport join: %w", err)
	}

	resume := c.Resume.Consume(uid, device, room)
	c.Departures.Cancel(uid)
	c.Registry.SetRoom(uid, cid, room)

	if prev != "" {
		c.Transport.LeaveRoom(cid, prev)
		c.Scheduler.Schedule(prev)
		if !resume && !c.userStillInRoom(uid, prev) {
			c.announce(ctx, prev, ActionSwitch, snap.User)
		}
	}

	c.persistAssignment(ctx, uid, room)
	c.Scheduler.Schedule(room)
	if !resume && !alreadyPresent {
		c.announce(ctx, room, ActionJoin, snap.User)
	}

	log.Info().Str("module", "app.coordinator").Str("user", string(uid)).Str("room", string(room)).Bool("resume", resume).Msg("joined room")
	return resume, nil
}

// Leave removes the connection from the room. Always safe to call: if the
// connection is not in that room it is an idempotent no-op.
func (c *Coordinator) Leave(ctx context.Context, uid domain.UserID, cid core.ConnID, room domain.RoomID) error {
	snap, ok := c.Registry.Snapshot(uid)
	if !ok {
		return nil
	}
	if !c.Registry.ClearRoom(uid, cid, room) {
		return nil
	}
	c.Transport.LeaveRoom(cid, room)
	c.persistAssignment(ctx, uid, "")
	c.Scheduler.Schedule(room)
	if !c.userStillInRoom(uid, room) {
		c.announce(ctx, room, ActionLeave, snap.User)
	}
	log.Info().Str("module", "app.coordinator").Str("user", string(uid)).Str("room", string(room)).Msg("left room")
	return nil
}

// OnDisconnect handles a physical connection dying. The last connection arms
// the resume markers and the departure timer instead of broadcasting
// immediately, so a quick refresh never flickers the presence list.
func (c *Coordinator) OnDisconnect(uid domain.UserID, cid core.ConnID, device string) {
	room, remaining, ok := c.Registry.Unregister(uid, cid)
	if !ok {
		return
	}
	if room != "" {
		c.Transport.LeaveRoom(cid, room)
	}
	if remaining == 0 {
		c.Resume.Arm(uid, device, room)
		c.Departures.Arm(uid, func() { c.finalizeDeparture(uid) })
		return
	}
	if room != "" && !c.userStillInRoom(uid, room) {
		// Other connections remain but none in this room anymore.
		c.Scheduler.Schedule(room)
	}
}

// Touch records activity, driven by transport pings.
func (c *Coordinator) Touch(uid domain.UserID) {
	c.Registry.Touch(uid)
}

// finalizeDeparture runs when the grace period elapses with zero
// connections: persist last-seen, announce, broadcast removal, clear caches.
func (c *Coordinator) finalizeDeparture(uid domain.UserID) {
	if c.Registry.ConnCount(uid) > 0 {
		return
	}
	snap, ok := c.Registry.Snapshot(uid)
	if !ok {
		return
	}
	room, removed := c.Registry.Remove(uid)
	if !removed {
		return
	}
	c.Resume.Drop(uid)
	c.pmu.Lock()
	delete(c.lastPersist, uid)
	c.pmu.Unlock()

	ctx := context.Background()
	if err := c.Profiles.PersistLastSeen(ctx, uid, c.now()); err != nil {
		log.Warn().Str("module", "app.coordinator").Err(err).Msg("last-seen persist degraded")
	}
	if room != "" {
		c.Scheduler.Schedule(room)
		c.announce(ctx, room, ActionLeave, snap.User)
	}
	log.Info().Str("module", "app.coordinator").Str("user", string(uid)).Str("room", string(room)).Msg("departure finalized")
}

func (c *Coordinator) userStillInRoom(uid domain.UserID, room domain.RoomID) bool {
	snap, ok := c.Registry.Snapshot(uid)
	if !ok {
		return false
	}
	for _, s := range snap.Sockets {
		if s.Room == room {
			return true
		}
	}
	return false
}

// announce formats, persists and fans out a system message. Persistence
// failure downgrades to transport-only delivery.
func (c *Coordinator) announce(ctx context.Context, room domain.RoomID, action SysAction, user *domain.User) {
	if user == nil {
		return
	}
	text := FormatSystemMessage(action, SysMeta{Username: user.Username, Role: user.Role, Level: user.Level})
	if err := c.Messages.AppendSystemMessage(ctx, room, text); err != nil {
		log.Warn().Str("module", "app.coordinator").Str("room", string(room)).Err(err).Msg("system message persist degraded")
	}
	c.Transport.SendSystemMessage(room, text)
}

// persistAssignment writes currentRoom at most once per cooldown per user.
func (c *Coordinator) persistAssignment(ctx context.Context, uid domain.UserID, room domain.RoomID) {
	now := c.now()
	c.pmu.Lock()
	if c.lastPersist == nil {
		c.lastPersist = make(map[domain.UserID]time.Time)
	}
	if last, ok := c.lastPersist[uid]; ok && now.Sub(last) < c.PersistCooldown {
		c.pmu.Unlock()
		return
	}
	c.lastPersist[uid] = now
	c.pmu.Unlock()

	if err := c.Profiles.PersistRoomAssignment(ctx, uid, room); err != nil {
		// Not surfaced to the user; the next presence rebuild self-heals.
		log.Warn().Str("module", "app.coordinator").Str("user", string(uid)).Err(err).Msg("room assignment persist degraded")
	}
}
