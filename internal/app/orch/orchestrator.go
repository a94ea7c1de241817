package orch

import (
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Now      func() time.Time

	// membership serializes register/join/leave/disconnect so a join racing
	// a teardown cannot leave a dangling room member.
	membership sync.Mutex
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Register binds identity to sid and puts the session in the identity room.
func (o *Orchestrator) Register(sid core.SessionID, identity domain.Identity) error {
	if identity.ID == "" {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("register without identity")
		return domain.ErrIdentityEmpty
	}
	o.membership.Lock()
	defer o.membership.Unlock()

	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return domain.ErrUnknownSession
	}
	sess.Bind(identity)
	o.joinLocked(sid, sess, domain.IdentityRoom(identity.ID))
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("identity", string(identity.ID)).Msg("registered")
	return nil
}

// Presence counts the live sessions of one identity.
func (o *Orchestrator) Presence(id domain.IdentityID) int {
	room, ok := o.Rooms.Get(domain.IdentityRoom(id))
	if !ok {
		return 0
	}
	return room.MemberCount()
}

func (o *Orchestrator) push(room core.RoomService, from core.SessionID, frame core.Frame) int {
	res := room.Broadcast(from, frame)
	o.onDropped(room, res.Dropped)
	return res.SendTo
}

func (o *Orchestrator) onDropped(room core.RoomService, dropped []core.MemberSession) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Str("room", string(room.Room().ID)).Msg("kicking slow session")
			o.KickBySID(slow.ID())
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
