package core

import (
	"github.com/dkeye/Relay/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Reached []SessionID
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	Session    SessionID         `json:"session"`
	Identities []domain.Identity `json:"identities"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	Members() []MemberSession
	MembersSnapshot() []MemberDTO

	// AddMember reports false when sid was already a member.
	AddMember(sid SessionID, ms MemberSession) bool
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
	// Unicast sends to one member only; SendTo is 0 when to is not a member.
	Unicast(to SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Kind        domain.RoomKind `json:"kind"`
	MemberCount int             `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
