package core

import (
	"context"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
)

// Frame is a raw payload sent down a signal connection.
type Frame []byte

// ConnID identifies one physical connection. A user may hold several.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Identity is the verified result of a credential check.
type Identity struct {
	UserID   domain.UserID
	Username string
}

// ModerationStatus is the collaborator's answer for one user.
// Blocked identities are refused outright; banned ones carry a deadline.
type ModerationStatus struct {
	Blocked bool
	Banned  bool
	Reason  string
	Until   time.Time
}

// CredentialVerifier checks a bearer token against the auth collaborator.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (Identity, error)
}

// ProfileStore is the persisted-profile collaborator. Reads may fail; the
// registry keeps serving from its in-memory snapshot when they do.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, id domain.UserID) (*domain.User, error)
	PersistRoomAssignment(ctx context.Context, id domain.UserID, room domain.RoomID) error
	PersistFingerprint(ctx context.Context, id domain.UserID, fingerprint string) error
	PersistLastSeen(ctx context.Context, id domain.UserID, at time.Time) error
}

// Moderation answers block/ban questions. Policy lives elsewhere.
type Moderation interface {
	Status(ctx context.Context, id domain.UserID) (ModerationStatus, error)
}

// RoomDirectory knows which rooms exist and are open for joining.
type RoomDirectory interface {
	RoomIsActive(ctx context.Context, id domain.RoomID) (bool, error)
	ActiveRooms(ctx context.Context) ([]domain.Room, error)
}

// MessageStore persists and fans out chat messages, including the system
// messages this core produces.
type MessageStore interface {
	AppendSystemMessage(ctx context.Context, room domain.RoomID, text string) error
}

// Transport is the connection-level view the coordinator commits room
// membership to before touching the registry. JoinRoom fails if the
// connection is already gone, which aborts the whole switch.
type Transport interface {
	JoinRoom(id ConnID, room domain.RoomID) error
	LeaveRoom(id ConnID, room domain.RoomID)
	SendSystemMessage(room domain.RoomID, text string)
}

// PresenceDTO is a read-only view for broadcasts (no transport fields).
type PresenceDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
	Level    int           `json:"level"`
	Avatar   string        `json:"avatar,omitempty"`
}
