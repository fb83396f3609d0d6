package domain

// RoomID is the stable room key. It appears verbatim in the room directory
// and in the per-room message storage keys.
type RoomID string

// RoomName is the display name shown in the room listing.
type RoomName string

// Room is one directory entry. Being listed is what makes a room joinable;
// inactive rooms are simply absent from the directory.
type Room struct {
	ID   RoomID
	Name RoomName
}
