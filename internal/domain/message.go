package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is relayed as a copy; the persistence collaborator owns it.
type Message struct {
	ID                    string       `json:"id"`
	ConversationID        string       `json:"conversation_id" validate:"required"`
	SenderID              IdentityID   `json:"sender_id" validate:"required"`
	Content               string       `json:"content"`
	CreatedAt             time.Time    `json:"created_at"`
	ConversationMemberIDs []IdentityID `json:"conversation_member_ids" validate:"required,min=1,dive,required"`
}

// Stamp fills the relay-owned fields a client may leave empty.
func (m *Message) Stamp(now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
}
