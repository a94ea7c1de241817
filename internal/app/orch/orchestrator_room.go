package orch

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Join adds sid to a room, creating it on first use. Joining twice is a no-op.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID) (bool, error) {
	o.membership.Lock()
	defer o.membership.Unlock()

	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return false, domain.ErrUnknownSession
	}
	return o.joinLocked(sid, sess, roomID), nil
}

func (o *Orchestrator) joinLocked(sid core.SessionID, sess core.MemberSession, roomID domain.RoomID) bool {
	added, ok := o.Registry.AddRoom(sid, roomID)
	if !ok || !added {
		return false
	}
	o.Rooms.GetOrCreate(roomID).AddMember(sid, sess)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
	return true
}

// Leave drops sid from one room and removes the room once empty.
func (o *Orchestrator) Leave(sid core.SessionID, roomID domain.RoomID) {
	o.membership.Lock()
	defer o.membership.Unlock()
	o.Registry.RemoveRoom(sid, roomID)
	o.leaveLocked(sid, roomID)
}

func (o *Orchestrator) leaveLocked(sid core.SessionID, roomID domain.RoomID) core.RoomService {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil
	}
	room.RemoveMember(sid)
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(roomID)
	}
	return room
}

func (o *Orchestrator) MembersOf(roomID domain.RoomID) []core.MemberSession {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil
	}
	return room.Members()
}

// KickBySID cancels the session; its pumps close the transport and the read
// loop reports the disconnect.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Registry.Cancel(sid)
}

// OnDisconnect tears sid out of every room it joined and tells each remaining
// member, once, that it is gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.membership.Lock()
	rooms, sess, ok := o.Registry.Unbind(sid)
	if !ok {
		o.membership.Unlock()
		return
	}
	recipients := make(map[core.SessionID]core.MemberSession)
	for _, roomID := range rooms {
		room := o.leaveLocked(sid, roomID)
		if room == nil {
			continue
		}
		for _, m := range room.Members() {
			recipients[m.ID()] = m
		}
	}
	o.membership.Unlock()

	evt := core.PeerGoneEvent{
		Type:       core.EventPeerGone,
		Session:    sid,
		Identities: lo.Map(sess.Identities(), func(i domain.Identity, _ int) domain.IdentityID { return i.ID }),
	}
	frame, err := core.Encode(evt)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode peer-gone")
		return
	}
	sent := 0
	for _, m := range recipients {
		if err := m.Signal().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(m.ID())).Msg("peer-gone not delivered")
			continue
		}
		sent++
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Int("rooms", len(rooms)).Int("notified", sent).Msg("session gone")
}
