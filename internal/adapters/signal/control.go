package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

func (ctl *Controller) handleAdmit(ctx context.Context, c *wsConn, data []byte) {
	var p admitPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(c, errorEvent{Type: "error", Error: "bad_payload"})
		return
	}

	profile, err := ctl.Gate.Admit(ctx, c.id, p.Token, domain.UserID(p.UserID), c.device)
	if err != nil {
		var blocked *core.BlockedError
		if errors.As(err, &blocked) {
			ev := admissionRejectedEvent{Type: "admission_rejected", Reason: blocked.Reason}
			if !blocked.Until.IsZero() {
				ev.RetryAfter = int64(time.Until(blocked.Until).Seconds())
			}
			ctl.sendJSON(c, ev)
			c.Close()
			return
		}
		var adm *core.AdmissionError
		reason := "unauthorized"
		if errors.As(err, &adm) {
			reason = adm.Reason
		}
		// Connection stays open for the retry window armed at upgrade.
		ctl.sendJSON(c, admissionRejectedEvent{Type: "admission_rejected", Reason: reason})
		return
	}

	c.mu.Lock()
	c.authorized = true
	c.userID = profile.ID
	if c.admitTimer != nil {
		c.admitTimer.Stop()
		c.admitTimer = nil
	}
	c.mu.Unlock()

	ctl.Coord.OnConnect(profile.ID)
	ctl.sendJSON(c, admittedEvent{Type: "admitted", User: profile})
}

func (ctl *Controller) handleJoin(ctx context.Context, c *wsConn, data []byte) {
	uid, ok := c.identity()
	if !ok {
		ctl.sendJSON(c, errorEvent{Type: "error", Error: "unauthorized"})
		return
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendJSON(c, errorEvent{Type: "error", Error: "bad_payload"})
		return
	}
	room := domain.RoomID(p.Room)

	resume, err := ctl.Coord.Join(ctx, uid, c.id, c.device, room)
	if err != nil {
		if errors.Is(err, core.ErrRoomUnavailable) {
			ctl.sendJSON(c, errorEvent{Type: "error", Error: "room_unavailable"})
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("join failed")
		ctl.sendJSON(c, errorEvent{Type: "error", Error: "join_failed"})
		return
	}

	// Immediate, unbatched confirmation for the acting connection; the rest
	// of the room goes through the scheduler.
	users := ctl.Presence.BuildOnlineUsers(ctx, room)
	ctl.sendJSON(c, roomJoinedEvent{
		Type:   "room_joined",
		Room:   room,
		Users:  users,
		Count:  len(users),
		Resume: resume,
	})
}

func (ctl *Controller) handleLeave(ctx context.Context, c *wsConn, data []byte) {
	uid, ok := c.identity()
	if !ok {
		ctl.sendJSON(c, errorEvent{Type: "error", Error: "unauthorized"})
		return
	}
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendJSON(c, errorEvent{Type: "error", Error: "bad_payload"})
		return
	}
	if err := ctl.Coord.Leave(ctx, uid, c.id, domain.RoomID(p.Room)); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("leave failed")
	}
	ctl.sendJSON(c, roomLeftEvent{Type: "room_left", Room: domain.RoomID(p.Room)})
}

func (ctl *Controller) handlePing(c *wsConn) {
	if uid, ok := c.identity(); ok {
		ctl.Coord.Touch(uid)
	}
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(c, resp)
}
