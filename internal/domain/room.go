package domain

import "strings"

type (
	RoomID   string
	RoomKind string
)

const (
	RoomKindIdentity     RoomKind = "user"
	RoomKindConversation RoomKind = "chat"
)

type Room struct {
	ID   RoomID
	Kind RoomKind
}

// IdentityRoom names the broadcast group holding every live session of id.
func IdentityRoom(id IdentityID) RoomID {
	return RoomID(string(RoomKindIdentity) + ":" + string(id))
}

// ConversationRoom names the broadcast group of one chat.
func ConversationRoom(id string) RoomID {
	return RoomID(string(RoomKindConversation) + ":" + id)
}

func NewRoom(id RoomID) *Room {
	kind := RoomKindConversation
	if strings.HasPrefix(string(id), string(RoomKindIdentity)+":") {
		kind = RoomKindIdentity
	}
	return &Room{ID: id, Kind: kind}
}
