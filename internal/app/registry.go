package app

import (
	"context"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type sessionEntry struct {
	Session core.MemberSession
	Rooms   map[domain.RoomID]struct{}
	Cancel  context.CancelFunc
}

// Registry owns every live session and the set of rooms each one joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		Session: sess,
		Rooms:   make(map[domain.RoomID]struct{}),
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("device", sess.Device()).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind forgets sid and hands back the rooms it was in.
func (r *Registry) Unbind(sid core.SessionID) ([]domain.RoomID, core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, nil, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("rooms", len(e.Rooms)).Msg("unbind session")
	return lo.Keys(e.Rooms), e.Session, true
}

// AddRoom records membership; added is false for a repeated join.
func (r *Registry) AddRoom(sid core.SessionID, room domain.RoomID) (added bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false, false
	}
	if _, dup := e.Rooms[room]; dup {
		return false, true
	}
	e.Rooms[room] = struct{}{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("joined room")
	return true, true
}

func (r *Registry) RemoveRoom(sid core.SessionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		delete(e.Rooms, room)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("removed room association")
}

func (r *Registry) RoomsOf(sid core.SessionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	return lo.Keys(e.Rooms)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
