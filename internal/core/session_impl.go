package core

import (
	"sync"

	"github.com/dkeye/Relay/internal/domain"
)

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	id     SessionID
	signal SignalConnection

	mu   sync.RWMutex
	meta *domain.Member
}

func NewMemberSession(id SessionID, meta *domain.Member, signal SignalConnection) MemberSession {
	return &memberSession{id: id, meta: meta, signal: signal}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Signal() SignalConnection { return m.signal }
func (m *memberSession) Device() string           { return m.meta.Device }

func (m *memberSession) Bind(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.Bind(id)
}

func (m *memberSession) Identities() []domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta.Identities()
}

func (m *memberSession) Primary() (domain.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta.Primary()
}
