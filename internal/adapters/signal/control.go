package signal

import (
	"github.com/dkeye/Relay/internal/core"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, core.Envelope{Type: core.EventPong})
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := core.WhoAmIEvent{
		Type:    core.EventWhoAmI,
		Session: sid,
		Rooms:   ctl.Orch.Registry.RoomsOf(sid),
	}
	if sess, ok := ctl.Orch.Registry.GetSession(sid); ok {
		resp.Identities = sess.Identities()
	}
	ctl.sendJSON(conn, resp)
}
