package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProfiles struct {
	mu           sync.Mutex
	users        map[domain.UserID]*domain.User
	failGet      bool
	failPersist  bool
	assignments  map[domain.UserID]domain.RoomID
	assignCalls  int
	fingerprints map[domain.UserID]string
	lastSeen     map[domain.UserID]time.Time
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		users:        make(map[domain.UserID]*domain.User),
		assignments:  make(map[domain.UserID]domain.RoomID),
		fingerprints: make(map[domain.UserID]string),
		lastSeen:     make(map[domain.UserID]time.Time),
	}
}

func (p *fakeProfiles) GetUserProfile(_ context.Context, id domain.UserID) (*domain.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet {
		return nil, errors.New("profile store down")
	}
	u, ok := p.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u.Clone(), nil
}

func (p *fakeProfiles) PersistRoomAssignment(_ context.Context, id domain.UserID, room domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assignCalls++
	if p.failPersist {
		return errors.New("write failed")
	}
	p.assignments[id] = room
	return nil
}

func (p *fakeProfiles) PersistFingerprint(_ context.Context, id domain.UserID, fp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPersist {
		return errors.New("write failed")
	}
	p.fingerprints[id] = fp
	return nil
}

func (p *fakeProfiles) PersistLastSeen(_ context.Context, id domain.UserID, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPersist {
		return errors.New("write failed")
	}
	p.lastSeen[id] = at
	return nil
}

func (p *fakeProfiles) assignmentOf(id domain.UserID) (domain.RoomID, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assignments[id], p.assignCalls
}

func (p *fakeProfiles) fingerprintOf(id domain.UserID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fingerprints[id]
}

type fakeModeration struct {
	statuses map[domain.UserID]core.ModerationStatus
	err      error
}

func (m *fakeModeration) Status(_ context.Context, id domain.UserID) (core.ModerationStatus, error) {
	if m.err != nil {
		return core.ModerationStatus{}, m.err
	}
	return m.statuses[id], nil
}

type fakeVerifier struct {
	identities map[string]core.Identity
}

func (v *fakeVerifier) VerifyCredential(_ context.Context, token string) (core.Identity, error) {
	id, ok := v.identities[token]
	if !ok {
		return core.Identity{}, errors.New("bad token")
	}
	return id, nil
}

type fakeRooms struct {
	active map[domain.RoomID]bool
}

func (r *fakeRooms) RoomIsActive(_ context.Context, id domain.RoomID) (bool, error) {
	return r.active[id], nil
}

func (r *fakeRooms) ActiveRooms(_ context.Context) ([]domain.Room, error) {
	out := make([]domain.Room, 0, len(r.active))
	for id := range r.active {
		out = append(out, domain.Room{ID: id, Name: domain.RoomName(id)})
	}
	return out, nil
}

type fakeMessages struct {
	mu     sync.Mutex
	byRoom map[domain.RoomID][]string
	fail   bool
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byRoom: make(map[domain.RoomID][]string)}
}

func (m *fakeMessages) AppendSystemMessage(_ context.Context, room domain.RoomID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("message store down")
	}
	m.byRoom[room] = append(m.byRoom[room], text)
	return nil
}

func (m *fakeMessages) inRoom(room domain.RoomID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.byRoom[room]))
	copy(out, m.byRoom[room])
	return out
}

type fakeTransport struct {
	mu       sync.Mutex
	joined   map[core.ConnID]domain.RoomID
	sysMsgs  map[domain.RoomID][]string
	failJoin bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		joined:  make(map[core.ConnID]domain.RoomID),
		sysMsgs: make(map[domain.RoomID][]string),
	}
}

func (t *fakeTransport) JoinRoom(id core.ConnID, room domain.RoomID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failJoin {
		return errors.New("transport down")
	}
	t.joined[id] = room
	return nil
}

func (t *fakeTransport) LeaveRoom(id core.ConnID, room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joined[id] == room {
		delete(t.joined, id)
	}
}

func (t *fakeTransport) SendSystemMessage(room domain.RoomID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sysMsgs[room] = append(t.sysMsgs[room], text)
}

type emitRecorder struct {
	mu     sync.Mutex
	counts map[domain.RoomID]int
}

func newEmitRecorder() *emitRecorder {
	return &emitRecorder{counts: make(map[domain.RoomID]int)}
}

func (e *emitRecorder) emit(room domain.RoomID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts[room]++
}

func (e *emitRecorder) count(room domain.RoomID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[room]
}

// testEnv wires a coordinator with fake collaborators, a fake clock and a
// manually flushed scheduler.
type testEnv struct {
	clock      *fakeClock
	registry   *Registry
	resume     *ResumeTracker
	departures *DepartureTimers
	scheduler  *BroadcastScheduler
	presence   *PresenceBuilder
	profiles   *fakeProfiles
	rooms      *fakeRooms
	messages   *fakeMessages
	transport  *fakeTransport
	emits      *emitRecorder
	coord      *Coordinator
}

func newTestEnv() *testEnv {
	clock := newFakeClock()
	registry := NewRegistry(clock.Now)
	profiles := newFakeProfiles()
	emits := newEmitRecorder()
	resume := NewResumeTracker(2*time.Hour, 3*time.Second, clock.Now)
	env := &testEnv{
		clock:      clock,
		registry:   registry,
		resume:     resume,
		departures: NewDepartureTimers(time.Hour),
		scheduler:  NewBroadcastScheduler(time.Hour, emits.emit),
		presence:   &PresenceBuilder{Registry: registry, Profiles: profiles, Resume: resume},
		profiles:   profiles,
		rooms:      &fakeRooms{active: map[domain.RoomID]bool{"general": true, "sports": true}},
		messages:   newFakeMessages(),
		transport:  newFakeTransport(),
		emits:      emits,
	}
	env.coord = &Coordinator{
		Registry:        registry,
		Resume:          env.resume,
		Departures:      env.departures,
		Scheduler:       env.scheduler,
		Rooms:           env.rooms,
		Profiles:        profiles,
		Messages:        env.messages,
		Transport:       env.transport,
		PersistCooldown: 10 * time.Second,
		Clock:           clock.Now,
	}
	return env
}

func (e *testEnv) addUser(u *domain.User) {
	e.profiles.mu.Lock()
	e.profiles.users[u.ID] = u
	e.profiles.mu.Unlock()
}

func (e *testEnv) connect(uid domain.UserID, cid core.ConnID) {
	u, _ := e.profiles.GetUserProfile(context.Background(), uid)
	e.registry.Register(uid, cid, u)
	e.coord.OnConnect(uid)
}
