package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrRoomUnavailable is surfaced to the acting connection only; no state
// changes when the target room is inactive or missing.
var ErrRoomUnavailable = errors.New("room unavailable")

// ErrPersistence marks a degraded storage write. Never surfaced to clients;
// the next presence rebuild self-heals.
var ErrPersistence = errors.New("persistence degraded")

// AdmissionError covers invalid credentials and identity mismatches. The
// transport keeps the socket open for a short retry window on this error.
type AdmissionError struct {
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission refused: %s", e.Reason)
}

// BlockedError is a moderation-level refusal. Until is zero for permanent
// blocks and set for time-boxed bans.
type BlockedError struct {
	Reason string
	Until  time.Time
}

func (e *BlockedError) Error() string {
	if e.Until.IsZero() {
		return fmt.Sprintf("blocked: %s", e.Reason)
	}
	return fmt.Sprintf("banned until %s: %s", e.Until.Format(time.RFC3339), e.Reason)
}
