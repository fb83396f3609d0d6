package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/domain"
)

// BroadcastScheduler coalesces presence-changing events: many Schedule calls
// for the same room within one window collapse into a single emit. Flush is
// exported so tests drive it deterministically instead of waiting on timers.
type BroadcastScheduler struct {
	mu      sync.Mutex
	pending map[domain.RoomID]struct{}
	timer   *time.Timer
	window  time.Duration
	emit    func(domain.RoomID)
}

func NewBroadcastScheduler(window time.Duration, emit func(domain.RoomID)) *BroadcastScheduler {
	return &BroadcastScheduler{
		pending: make(map[domain.RoomID]struct{}),
		window:  window,
		emit:    emit,
	}
}

// SetEmit rebinds the emit target. Used at wiring time when the transport is
// constructed after the scheduler.
func (s *BroadcastScheduler) SetEmit(emit func(domain.RoomID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emit
}

// Schedule marks the room dirty. The first call in a quiet period arms the
// timer; the rest just join the pending set.
func (s *BroadcastScheduler) Schedule(room domain.RoomID) {
	if room == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[room] = struct{}{}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.window, s.Flush)
	}
}

// Flush emits exactly one broadcast per pending room and clears the set. A
// room with no subsequent activity receives no further broadcasts.
func (s *BroadcastScheduler) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.pending
	s.pending = make(map[domain.RoomID]struct{})
	emit := s.emit
	s.mu.Unlock()

	if emit == nil {
		return
	}
	for room := range dirty {
		emit(room)
	}
	if len(dirty) > 0 {
		log.Debug().Str("module", "app.scheduler").Int("rooms", len(dirty)).Msg("flushed presence broadcasts")
	}
}

// Stop drops any armed timer without emitting.
func (s *BroadcastScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = make(map[domain.RoomID]struct{})
}
