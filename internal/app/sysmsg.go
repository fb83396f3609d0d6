package app

import (
	"fmt"

	"github.com/dkeye/Chatter/internal/domain"
)

// SysAction is the kind of membership event being announced.
type SysAction int

const (
	ActionJoin SysAction = iota
	ActionLeave
	ActionSwitch
)

// SysMeta carries the role/level decoration for the announcement.
type SysMeta struct {
	Username string
	Role     domain.Role
	Level    int
}

// FormatSystemMessage is a pure function: no side effects, no I/O. The
// coordinator calls it right before persisting the message.
func FormatSystemMessage(action SysAction, m SysMeta) string {
	name := decoratedName(m)
	switch action {
	case ActionJoin:
		return fmt.Sprintf("%s joined the room", name)
	case ActionLeave:
		return fmt.Sprintf("%s left the room", name)
	case ActionSwitch:
		return fmt.Sprintf("%s moved to another room", name)
	}
	return ""
}

func decoratedName(m SysMeta) string {
	switch m.Role {
	case domain.RoleAdmin:
		return fmt.Sprintf("admin %s", m.Username)
	case domain.RoleModerator:
		return fmt.Sprintf("moderator %s", m.Username)
	}
	if m.Level > 0 {
		return fmt.Sprintf("%s (lvl %d)", m.Username, m.Level)
	}
	return m.Username
}
