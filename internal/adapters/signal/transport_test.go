package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

func newTestConn(id core.ConnID, buf int) *wsConn {
	return &wsConn{id: id, send: make(chan core.Frame, buf)}
}

func newTestController() *Controller {
	return &Controller{
		conns: make(map[core.ConnID]*wsConn),
		rooms: make(map[domain.RoomID]map[core.ConnID]*wsConn),
	}
}

func TestJoinRoomUnknownConnection(t *testing.T) {
	ctl := newTestController()
	assert.Error(t, ctl.JoinRoom("ghost", "general"))
}

func TestRoomSubscriptionIndex(t *testing.T) {
	ctl := newTestController()
	c := newTestConn("c1", 4)
	ctl.conns[c.id] = c

	require.NoError(t, ctl.JoinRoom("c1", "general"))
	ctl.SendSystemMessage("general", "hello")
	assert.Len(t, c.send, 1)

	ctl.LeaveRoom("c1", "general")
	ctl.SendSystemMessage("general", "again")
	assert.Len(t, c.send, 1, "unsubscribed connection receives nothing")
}

func TestJoinRoomClosedConnection(t *testing.T) {
	ctl := newTestController()
	c := newTestConn("c1", 1)
	c.closed = true
	ctl.conns[c.id] = c

	assert.Error(t, ctl.JoinRoom("c1", "general"))
}

func TestTrySendBackpressure(t *testing.T) {
	c := newTestConn("c1", 1)
	require.NoError(t, c.TrySend(core.Frame("a")))
	assert.ErrorIs(t, c.TrySend(core.Frame("b")), ErrBackpressure)
}
