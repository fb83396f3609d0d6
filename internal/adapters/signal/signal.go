package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns all WebSocket connections and implements core.Transport:
// the room subscription index lives here, separate from the presence truth
// in the registry.
type Controller struct {
	Cfg      *config.Config
	Gate     *app.AdmissionGate
	Coord    *app.Coordinator
	Presence *app.PresenceBuilder

	mu    sync.RWMutex
	conns map[core.ConnID]*wsConn
	rooms map[domain.RoomID]map[core.ConnID]*wsConn
}

func NewController(cfg *config.Config, gate *app.AdmissionGate, presence *app.PresenceBuilder) *Controller {
	return &Controller{
		Cfg:      cfg,
		Gate:     gate,
		Presence: presence,
		conns:    make(map[core.ConnID]*wsConn),
		rooms:    make(map[domain.RoomID]map[core.ConnID]*wsConn),
	}
}

// Bind attaches the coordinator after construction; the coordinator needs
// the controller as its transport, so wiring is two-step.
func (ctl *Controller) Bind(coord *app.Coordinator) {
	ctl.Coord = coord
}

var _ core.SignalConnection = (*wsConn)(nil)

type wsConn struct {
	id     core.ConnID
	conn   *websocket.Conn
	send   chan core.Frame
	device string

	mu         sync.RWMutex
	closed     bool
	authorized bool
	userID     domain.UserID
	admitTimer *time.Timer
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.admitTimer != nil {
		c.admitTimer.Stop()
	}
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsConn) identity() (domain.UserID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.authorized
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and starts the pumps. The connection is
// not registered anywhere until an admit frame succeeds; it only gets the
// admission retry window to produce one.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	device := c.GetString("device_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &wsConn{
		id:     core.ConnID(uuid.NewString()),
		conn:   ws,
		send:   make(chan core.Frame, 32),
		device: device,
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("new WS connection")

	// Unadmitted connections get a grace window to (re)try admission
	// before a forced disconnect, tolerating slow credential delivery.
	conn.mu.Lock()
	conn.admitTimer = time.AfterFunc(ctl.Cfg.AdmissionRetryWindow, func() {
		if _, ok := conn.identity(); !ok {
			log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("admission window expired")
			conn.Close()
		}
	})
	conn.mu.Unlock()

	ctl.mu.Lock()
	ctl.conns[conn.id] = conn
	ctl.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, conn)
		cancel()
		ctl.onDisconnect(conn)
	}()
}

// onDisconnect tears the connection out of the transport index and hands
// the presence consequences to the coordinator.
func (ctl *Controller) onDisconnect(conn *wsConn) {
	conn.Close()

	ctl.mu.Lock()
	delete(ctl.conns, conn.id)
	for room, subs := range ctl.rooms {
		if _, ok := subs[conn.id]; ok {
			delete(subs, conn.id)
			if len(subs) == 0 {
				delete(ctl.rooms, room)
			}
		}
	}
	ctl.mu.Unlock()

	if uid, ok := conn.identity(); ok {
		ctl.Coord.OnDisconnect(uid, conn.id, conn.device)
	}
}

// JoinRoom subscribes the connection to room fan-out. It fails when the
// connection is already gone, which aborts the coordinator's switch before
// any registry commit.
func (ctl *Controller) JoinRoom(id core.ConnID, room domain.RoomID) error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	conn, ok := ctl.conns[id]
	if !ok {
		return errors.New("connection gone")
	}
	conn.mu.RLock()
	closed := conn.closed
	conn.mu.RUnlock()
	if closed {
		return errors.New("connection closed")
	}
	subs, ok := ctl.rooms[room]
	if !ok {
		subs = make(map[core.ConnID]*wsConn)
		ctl.rooms[room] = subs
	}
	subs[id] = conn
	return nil
}

func (ctl *Controller) LeaveRoom(id core.ConnID, room domain.RoomID) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if subs, ok := ctl.rooms[room]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(ctl.rooms, room)
		}
	}
}

func (ctl *Controller) SendSystemMessage(room domain.RoomID, text string) {
	ctl.BroadcastRoom(room, systemMessageEvent{Type: "system_message", Room: room, Text: text})
}

func (ctl *Controller) BroadcastRoom(room domain.RoomID, v any) {
	ctl.mu.RLock()
	subs := make([]*wsConn, 0, len(ctl.rooms[room]))
	for _, conn := range ctl.rooms[room] {
		subs = append(subs, conn)
	}
	ctl.mu.RUnlock()
	for _, conn := range subs {
		ctl.sendJSON(conn, v)
	}
}

// EmitPresence is the scheduler's flush target: one batched presence update
// plus a user-count update per dirty room.
func (ctl *Controller) EmitPresence(room domain.RoomID) {
	users := ctl.Presence.BuildOnlineUsers(context.Background(), room)
	ctl.BroadcastRoom(room, presenceUpdateEvent{Type: "presence_update", Room: room, Users: users, Source: "batch"})
	ctl.BroadcastRoom(room, roomUserCountEvent{Type: "room_user_count", Room: room, Count: len(users)})
}
