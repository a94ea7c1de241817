package core

import (
	"sync"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room  *domain.Room
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return false
	}
	r.bySID[sid] = ms
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySID, sid)
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) Members() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.bySID)
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
		res.Reached = append(res.Reached, sid)
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Unicast(to SessionID, data Frame) PublishResult {
	r.mu.RLock()
	m, ok := r.bySID[to]
	r.mu.RUnlock()
	if !ok {
		return PublishResult{}
	}
	if err := m.Signal().TrySend(data); err != nil {
		return PublishResult{Dropped: []MemberSession{m}}
	}
	return PublishResult{SendTo: 1, Reached: []SessionID{to}}
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for sid, ms := range r.bySID {
		out = append(out, MemberDTO{Session: sid, Identities: ms.Identities()})
	}
	return out
}
