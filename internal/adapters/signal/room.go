package signal

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleJoin puts the session into a conversation room. There is no
// membership check; repeated joins are acknowledged but change nothing.
func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p core.JoinRoomRequest
	if !ctl.decode(conn, core.EventJoinRoom, data, &p) {
		return
	}
	roomID := domain.ConversationRoom(p.RoomID)
	added, err := ctl.Orch.Join(sid, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("join")
		ctl.sendError(conn, core.NewError(core.ErrCodeNotRegistered, core.EventJoinRoom))
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Bool("added", added).Msg("join")
	ctl.sendJSON(conn, core.JoinedEvent{Type: core.EventJoined, RoomID: roomID})
}
