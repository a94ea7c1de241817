package signal

import (
	"errors"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleCallSignal relays call control to the target identity. The relay
// takes no part in the negotiation itself.
func (ctl *SignalWSController) handleCallSignal(
	sid core.SessionID,
	conn *WsSignalConn,
	typ core.EventType,
	data []byte,
) {
	var p core.CallSignal
	if !ctl.decode(conn, typ, data, &p) {
		return
	}
	p.Type = typ

	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	if _, registered := sess.Primary(); !registered {
		ctl.sendError(conn, ctl.callError(core.ErrCodeNotRegistered, p))
		return
	}
	if typ == core.EventDial && ctl.opts.Limiter != nil && !ctl.opts.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("to", string(p.To)).Msg("dial rate limited")
		ctl.sendError(conn, ctl.callError(core.ErrCodeRateLimited, p))
		return
	}

	reached, err := ctl.Orch.Route(sid, p)
	if err != nil {
		code := core.ErrCodeInvalidPayload
		if errors.Is(err, domain.ErrUnreachable) {
			code = core.ErrCodeUnreachable
		}
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(typ)).Str("to", string(p.To)).Msg("call signal not routed")
		ctl.sendError(conn, ctl.callError(code, p))
		return
	}
	// the caller learns which devices ring
	if typ == core.EventDial {
		ctl.sendJSON(conn, core.RingingEvent{Type: core.EventRinging, CallID: p.CallID, To: p.To, Sessions: reached})
	}
}

func (ctl *SignalWSController) callError(code string, p core.CallSignal) core.ErrorEvent {
	evt := core.NewError(code, p.Type)
	evt.To = p.To
	evt.CallID = p.CallID
	return evt
}
