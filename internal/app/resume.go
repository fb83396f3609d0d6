package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/domain"
)

// userMarker suppresses join/leave churn when the same user reconnects to
// the same room within the long window.
type userMarker struct {
	until time.Time
	room  domain.RoomID
}

// deviceMarker covers the sub-second race of a page refresh, where the old
// connection's death and the new connection's arrival can land out of order.
type deviceMarker struct {
	until time.Time
	room  domain.RoomID
	user  domain.UserID
}

// ResumeTracker is a small table of expiring markers. Expiry is lazy: stale
// markers are ignored and overwritten, no background sweep.
type ResumeTracker struct {
	mu       sync.Mutex
	byUser   map[domain.UserID]userMarker
	byDevice map[string]deviceMarker

	long  time.Duration
	short time.Duration
	clock func() time.Time
}

func NewResumeTracker(long, short time.Duration, clock func() time.Time) *ResumeTracker {
	if clock == nil {
		clock = time.Now
	}
	return &ResumeTracker{
		byUser:   make(map[domain.UserID]userMarker),
		byDevice: make(map[string]deviceMarker),
		long:     long,
		short:    short,
		clock:    clock,
	}
}

// Arm records both markers when a user's last connection drops while in a
// room. Arming with an empty room still writes the markers so an idle
// reconnect cancels cleanly, but Consume will never match them to a join.
func (t *ResumeTracker) Arm(uid domain.UserID, device string, room domain.RoomID) {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byUser[uid] = userMarker{until: now.Add(t.long), room: room}
	if device != "" {
		t.byDevice[device] = deviceMarker{until: now.Add(t.short), room: room, user: uid}
	}
	log.Debug().Str("module", "app.resume").Str("user", string(uid)).Str("room", string(room)).Msg("armed resume markers")
}

// Consume reports whether a join for the given room is a resume. Markers are
// write-once-read-once: a match deletes both. The device marker is narrower
// (same device, same user, same room) and wins when valid; otherwise the
// user marker applies if it names the same room. Suppression never crosses
// rooms.
func (t *ResumeTracker) Consume(uid domain.UserID, device string, room domain.RoomID) bool {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if device != "" {
		if dm, ok := t.byDevice[device]; ok {
			if now.Before(dm.until) && dm.user == uid && dm.room == room && room != "" {
				delete(t.byDevice, device)
				delete(t.byUser, uid)
				return true
			}
			if !now.Before(dm.until) {
				delete(t.byDevice, device)
			}
		}
	}

	if um, ok := t.byUser[uid]; ok {
		if now.Before(um.until) && um.room == room && room != "" {
			delete(t.byUser, uid)
			if device != "" {
				delete(t.byDevice, device)
			}
			return true
		}
		if !now.Before(um.until) {
			delete(t.byUser, uid)
		}
	}
	return false
}

// Pending reports whether an unexpired marker still names the room for the
// user, without consuming anything. The presence builder uses this to keep a
// refreshing user visible between re-admission and their join frame.
func (t *ResumeTracker) Pending(uid domain.UserID, room domain.RoomID) bool {
	if room == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	um, ok := t.byUser[uid]
	return ok && t.clock().Before(um.until) && um.room == room
}

// Drop discards any markers for the user, used when a departure finalizes.
func (t *ResumeTracker) Drop(uid domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byUser, uid)
	for d, dm := range t.byDevice {
		if dm.user == uid {
			delete(t.byDevice, d)
		}
	}
}
