package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-c.wake:
			for _, data := range c.take() {
				if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
					return
				}
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		if ctl.opts.Limiter != nil {
			ctl.opts.Limiter.Forget(sid)
		}
		cancel()
		c.Close()
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
			ctl.handleSignal(sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, core.NewError(core.ErrCodeBadPayload, ""))
		return
	}

	switch {
	case env.Type == core.EventRegister:
		ctl.handleRegister(sid, c, data)
	case env.Type == core.EventJoinRoom:
		ctl.handleJoin(sid, c, data)
	case env.Type == core.EventNewMessage:
		ctl.handleMessage(sid, c, data)
	case env.Type == core.EventPing:
		ctl.handlePing(c)
	case env.Type == core.EventWhoAmI:
		ctl.handleWhoAmI(sid, c)
	case env.Type.IsCallSignal() && env.Type != core.EventIncomingCall:
		ctl.handleCallSignal(sid, c, env.Type, data)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(c, core.NewError(core.ErrCodeUnknownType, env.Type))
	}
}

// decode unmarshals and validates one payload, answering the sender with an
// error ack when either step fails.
func (ctl *SignalWSController) decode(c *WsSignalConn, ref core.EventType, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(ref)).Msg("bad payload")
		ctl.sendError(c, core.NewError(core.ErrCodeBadPayload, ref))
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(ref)).Msg("invalid payload")
		ctl.sendError(c, core.NewError(core.ErrCodeInvalidPayload, ref))
		return false
	}
	return true
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, evt core.ErrorEvent) {
	ctl.sendJSON(c, evt)
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil && !errors.Is(err, ErrConnClosed) {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON enqueue")
	}
}
