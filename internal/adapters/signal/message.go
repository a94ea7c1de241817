package signal

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p core.MessageEvent
	if !ctl.decode(conn, core.EventNewMessage, data, &p) {
		return
	}
	sent, err := ctl.Orch.Deliver(p.Message)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("message not relayed")
		ctl.sendError(conn, core.NewError(core.ErrCodeInvalidPayload, core.EventNewMessage))
		return
	}
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("conversation", p.ConversationID).Int("sent_to", sent).Msg("new message")
}
