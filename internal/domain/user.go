// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
)

const (
	MaxIdentityIDLen   = 64
	MaxDisplayNameLen  = 64
	defaultDisplayName = "guest"
)

type IdentityID string

// Identity is the record handed over by the authentication collaborator.
// The relay trusts it as-is.
type Identity struct {
	ID          IdentityID `json:"id" validate:"required,max=64"`
	DisplayName string     `json:"display_name,omitempty" validate:"max=64"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id, displayName string) (*Identity, error) {
	id = strings.TrimSpace(id)
	if len(id) == 0 {
		return nil, ErrIdentityEmpty
	}
	if len(id) > MaxIdentityIDLen {
		return nil, ErrIdentityTooLong
	}
	u := &Identity{ID: IdentityID(id)}
	if err := u.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Identity) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		name = defaultDisplayName
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = name
	return nil
}
