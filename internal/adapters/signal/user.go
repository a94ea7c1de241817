package signal

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRegister(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p core.RegisterRequest
	if !ctl.decode(conn, core.EventRegister, data, &p) {
		return
	}
	identity, err := domain.NewIdentity(string(p.Identity.ID), p.Identity.DisplayName)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("rejected identity")
		ctl.sendError(conn, core.NewError(core.ErrCodeInvalidPayload, core.EventRegister))
		return
	}
	if err := ctl.Orch.Register(sid, *identity); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("register")
		ctl.sendError(conn, core.NewError(core.ErrCodeNotRegistered, core.EventRegister))
		return
	}
	ctl.sendJSON(conn, core.RegisteredEvent{
		Type:     core.EventRegistered,
		Session:  sid,
		Identity: *identity,
	})
}
