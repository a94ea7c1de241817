package core

import "encoding/json"

//go:generate mockgen -source=signal_iface.go -destination=../mocks/mock_signal.go -package=mocks

// Frame is a raw encoded event, one websocket text message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Encode turns an event value into a frame.
func Encode(v any) (Frame, error) {
	return json.Marshal(v)
}
