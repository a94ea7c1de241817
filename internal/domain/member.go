package domain

import "slices"

// Member represents the identities bound to one connection.
// No transport or lifecycle logic here.
type Member struct {
	Device     string
	identities []Identity
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(device string) *Member {
	return &Member{Device: device}
}

// Bind adds an identity binding. Binding the same id twice keeps one entry
// and refreshes the display name.
func (m *Member) Bind(id Identity) {
	for i := range m.identities {
		if m.identities[i].ID == id.ID {
			m.identities[i] = id
			return
		}
	}
	m.identities = append(m.identities, id)
}

func (m *Member) Identities() []Identity {
	return slices.Clone(m.identities)
}

// Primary returns the first bound identity.
func (m *Member) Primary() (Identity, bool) {
	if len(m.identities) == 0 {
		return Identity{}, false
	}
	return m.identities[0], true
}

func (m *Member) Has(id IdentityID) bool {
	return slices.ContainsFunc(m.identities, func(i Identity) bool { return i.ID == id })
}
