package core

import (
	"github.com/dkeye/Relay/internal/domain"
	"github.com/pion/webrtc/v4"
)

// EventType is the "type" field every frame carries.
type EventType string

const (
	EventRegister        EventType = "register"
	EventRegistered      EventType = "registered"
	EventJoinRoom        EventType = "join-room"
	EventJoined          EventType = "joined"
	EventNewMessage      EventType = "new-message"
	EventMessageReceived EventType = "message-received"
	EventPeerGone        EventType = "peer-gone"
	EventError           EventType = "error"
	EventPing            EventType = "ping"
	EventPong            EventType = "pong"
	EventWhoAmI          EventType = "whoami"
	EventRinging         EventType = "ringing"

	EventDial         EventType = "dial"
	EventIncomingCall EventType = "incoming-call"
	EventCallAccepted EventType = "call-accepted"
	EventPrepare      EventType = "prepare"
	EventReady        EventType = "ready"
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"
	EventEndCall      EventType = "end-call"
)

// IsCallSignal reports whether frames of this type are routed by identity.
func (t EventType) IsCallSignal() bool {
	switch t {
	case EventDial, EventIncomingCall, EventCallAccepted, EventPrepare, EventReady,
		EventOffer, EventAnswer, EventICECandidate, EventEndCall:
		return true
	}
	return false
}

// Error codes carried by ErrorEvent.
const (
	ErrCodeBadPayload     = "bad_payload"
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeNotRegistered  = "not_registered"
	ErrCodeUnreachable    = "unreachable"
	ErrCodeRateLimited    = "rate_limited"
)

// Envelope is decoded first to pick a handler.
type Envelope struct {
	Type EventType `json:"type"`
}

type RegisterRequest struct {
	Type     EventType       `json:"type"`
	Identity domain.Identity `json:"identity"`
}

type RegisteredEvent struct {
	Type     EventType       `json:"type"`
	Session  SessionID       `json:"session"`
	Identity domain.Identity `json:"identity"`
}

type JoinRoomRequest struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"room_id" validate:"required,max=128"`
}

type JoinedEvent struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"room_id"`
}

// MessageEvent is both new-message and message-received.
type MessageEvent struct {
	Type EventType `json:"type"`
	domain.Message
}

// CallSignal is every call-control frame. The relay only reads To and
// stamps Session (and From when empty); the rest is forwarded untouched.
type CallSignal struct {
	Type        EventType                `json:"type"`
	CallID      string                   `json:"call_id,omitempty"`
	To          domain.IdentityID        `json:"to" validate:"required"`
	From        domain.IdentityID        `json:"from,omitempty"`
	DisplayName string                   `json:"display_name,omitempty"`
	MediaKind   domain.MediaKind         `json:"media_kind,omitempty"`
	SDP         string                   `json:"sdp,omitempty"`
	Candidate   *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Reason      domain.EndReason         `json:"reason,omitempty"`
	Session     SessionID                `json:"session,omitempty"`
	ToSession   SessionID                `json:"to_session,omitempty"`
}

// RingingEvent acks a routed dial with the callee sessions it reached.
type RingingEvent struct {
	Type     EventType         `json:"type"`
	CallID   string            `json:"call_id"`
	To       domain.IdentityID `json:"to"`
	Sessions []SessionID       `json:"sessions"`
}

type PeerGoneEvent struct {
	Type       EventType           `json:"type"`
	Session    SessionID           `json:"session"`
	Identities []domain.IdentityID `json:"identities,omitempty"`
}

type ErrorEvent struct {
	Type   EventType         `json:"type"`
	Error  string            `json:"error"`
	Ref    EventType         `json:"ref,omitempty"`
	To     domain.IdentityID `json:"to,omitempty"`
	CallID string            `json:"call_id,omitempty"`
}

func NewError(code string, ref EventType) ErrorEvent {
	return ErrorEvent{Type: EventError, Error: code, Ref: ref}
}

type WhoAmIEvent struct {
	Type       EventType         `json:"type"`
	Session    SessionID         `json:"session"`
	Identities []domain.Identity `json:"identities"`
	Rooms      []domain.RoomID   `json:"rooms"`
}
