package app

import (
	"sync"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
)

// DepartureTimers arms one timer per user the instant their connection count
// reaches zero. A new authenticated connection cancels it; firing finalizes
// the offline transition. This is the only cancellable scheduled work in the
// presence core.
type DepartureTimers struct {
	mu     sync.Mutex
	timers map[domain.UserID]*time.Timer
	grace  time.Duration
}

func NewDepartureTimers(grace time.Duration) *DepartureTimers {
	return &DepartureTimers{
		timers: make(map[domain.UserID]*time.Timer),
		grace:  grace,
	}
}

// Arm schedules fire after the grace period, replacing any earlier timer for
// the same user.
func (d *DepartureTimers) Arm(uid domain.UserID, fire func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[uid]; ok {
		t.Stop()
	}
	d.timers[uid] = time.AfterFunc(d.grace, func() {
		d.mu.Lock()
		delete(d.timers, uid)
		d.mu.Unlock()
		fire()
	})
}

// Cancel stops a pending departure. Reports whether one was pending.
func (d *DepartureTimers) Cancel(uid domain.UserID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.timers[uid]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.timers, uid)
	return true
}

// Stop cancels everything, for shutdown.
func (d *DepartureTimers) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for uid, t := range d.timers {
		t.Stop()
		delete(d.timers, uid)
	}
}
