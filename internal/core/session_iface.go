package core

import "github.com/dkeye/Relay/internal/domain"

type SessionID string

// MemberSession binds the identities of one connection and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Device() string
	Signal() SignalConnection
	Bind(domain.Identity)
	Identities() []domain.Identity
	Primary() (domain.Identity, bool)
}
