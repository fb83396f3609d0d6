package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// PresenceBuilder derives the sanitized online-user list for a room from the
// registry plus lazily-fetched persisted state. Every call computes a fresh
// slice; callers go through the scheduler rather than calling this in a
// tight loop.
type PresenceBuilder struct {
	Registry *Registry
	Profiles core.ProfileStore
	Resume   *ResumeTracker
}

// BuildOnlineUsers returns the de-duplicated, hidden-filtered presence list
// for the room. One corrupt profile never blanks the whole list: each user
// is resolved in isolation and skipped on failure.
func (b *PresenceBuilder) BuildOnlineUsers(ctx context.Context, room domain.RoomID) []core.PresenceDTO {
	snaps := b.Registry.ScanAll()
	out := make([]core.PresenceDTO, 0, len(snaps))
	for _, snap := range snaps {
		dto, ok := b.resolve(ctx, snap, room)
		if ok {
			out = append(out, dto)
		}
	}
	return out
}

func (b *PresenceBuilder) resolve(ctx context.Context, snap EntrySnapshot, room domain.RoomID) (dto core.PresenceDTO, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "app.presence").Interface("panic", rec).Msg("skipping user in presence build")
			ok = false
		}
	}()

	user := snap.User
	if user == nil {
		return core.PresenceDTO{}, false
	}

	if snap.ProfileStale && b.Profiles != nil {
		if fresh, err := b.Profiles.GetUserProfile(ctx, user.ID); err == nil && fresh != nil {
			b.Registry.RepairProfile(user.ID, fresh)
			user = fresh
		}
		// On failure the in-memory snapshot is the fallback.
	}

	if !b.inRoom(snap, user, room) {
		return core.PresenceDTO{}, false
	}
	if user.Hidden {
		return core.PresenceDTO{}, false
	}

	dto = core.PresenceDTO{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		Level:    user.Level,
		Avatar:   avatarRef(user),
	}
	return dto, true
}

// inRoom applies the authority rule: bots live where their persisted
// currentRoom says; humans live where their connections say. An entry with
// zero connections is still present in its last room until the departure
// timer removes it, and a re-admitted entry whose sockets are all room-less
// stays present in its last room while a resume marker for it is live, so a
// refresh never drops the user from a broadcast between admit and join.
func (b *PresenceBuilder) inRoom(snap EntrySnapshot, user *domain.User, room domain.RoomID) bool {
	if user.Bot {
		return user.CurrentRoom == room
	}
	anyRoomed := false
	for _, s := range snap.Sockets {
		if s.Room == room {
			return true
		}
		if s.Room != "" {
			anyRoomed = true
		}
	}
	if anyRoomed || snap.LastRoom != room {
		return false
	}
	if len(snap.Sockets) == 0 {
		return true
	}
	return b.Resume != nil && b.Resume.Pending(user.ID, room)
}

// avatarRef cache-busts the avatar URL when a version tag is present.
func avatarRef(u *domain.User) string {
	if u.AvatarURL == "" {
		return ""
	}
	if u.AvatarVersion == "" {
		return u.AvatarURL
	}
	return u.AvatarURL + "?v=" + u.AvatarVersion
}
