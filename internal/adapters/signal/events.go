package signal

import (
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// Inbound payloads. Every frame is a JSON envelope with a "type" field.

type admitPayload struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	UserID string `json:"user_id,omitempty"`
}

type joinPayload struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type leavePayload struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// Outbound payloads.

type admittedEvent struct {
	Type string       `json:"type"`
	User *domain.User `json:"user"`
}

type admissionRejectedEvent struct {
	Type       string `json:"type"`
	Reason     string `json:"reason"`
	RetryAfter int64  `json:"retry_after,omitempty"` // seconds, for time-boxed bans
}

type roomJoinedEvent struct {
	Type   string             `json:"type"`
	Room   domain.RoomID      `json:"room"`
	Users  []core.PresenceDTO `json:"users"`
	Count  int                `json:"count"`
	Resume bool               `json:"resume,omitempty"`
}

type roomLeftEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type presenceUpdateEvent struct {
	Type   string             `json:"type"`
	Room   domain.RoomID      `json:"room"`
	Users  []core.PresenceDTO `json:"users"`
	Source string             `json:"source"`
}

type roomUserCountEvent struct {
	Type  string        `json:"type"`
	Room  domain.RoomID `json:"room"`
	Count int           `json:"count"`
}

type systemMessageEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
	Text string        `json:"text"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
