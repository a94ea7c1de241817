package orch

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Deliver pushes a message-received copy to every live session of every
// other conversation member. Conversation rooms play no part here.
func (o *Orchestrator) Deliver(msg domain.Message) (int, error) {
	if len(msg.ConversationMemberIDs) == 0 {
		log.Warn().Str("module", "orch").Str("conversation", msg.ConversationID).Str("sender", string(msg.SenderID)).Msg("malformed message: no members")
		return 0, domain.ErrNoMembers
	}
	msg.Stamp(o.now())
	frame, err := core.Encode(core.MessageEvent{Type: core.EventMessageReceived, Message: msg})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range lo.Without(lo.Uniq(msg.ConversationMemberIDs), msg.SenderID) {
		room, ok := o.Rooms.Get(domain.IdentityRoom(id))
		if !ok {
			continue
		}
		sent += o.push(room, "", frame)
	}
	log.Debug().Str("module", "orch").Str("message", msg.ID).Str("conversation", msg.ConversationID).Int("sent_to", sent).Msg("message relayed")
	return sent, nil
}

// Route forwards one call-control frame to every session of sig.To, or only
// to sig.ToSession when it names one of them. It never looks at call state
// and returns the sessions the frame reached.
func (o *Orchestrator) Route(from core.SessionID, sig core.CallSignal) ([]core.SessionID, error) {
	if sig.To == "" {
		log.Warn().Str("module", "orch").Str("sid", string(from)).Str("type", string(sig.Type)).Msg("call signal without target")
		return nil, domain.ErrNoTarget
	}
	sig.Session = from
	if sig.From == "" {
		if sess, ok := o.Registry.GetSession(from); ok {
			if id, ok := sess.Primary(); ok {
				sig.From = id.ID
			}
		}
	}
	if sig.Type == core.EventDial {
		sig.Type = core.EventIncomingCall
	}

	room, ok := o.Rooms.Get(domain.IdentityRoom(sig.To))
	if !ok || sig.ToSession == from {
		return nil, domain.ErrUnreachable
	}
	frame, err := core.Encode(sig)
	if err != nil {
		return nil, err
	}
	var res core.PublishResult
	if sig.ToSession != "" {
		res = room.Unicast(sig.ToSession, frame)
	} else {
		res = room.Broadcast(from, frame)
	}
	o.onDropped(room, res.Dropped)
	if res.SendTo == 0 {
		return nil, domain.ErrUnreachable
	}
	log.Debug().Str("module", "orch").Str("type", string(sig.Type)).Str("from", string(sig.From)).Str("to", string(sig.To)).Str("to_session", string(sig.ToSession)).Int("sent_to", res.SendTo).Msg("call signal routed")
	return res.Reached, nil
}
