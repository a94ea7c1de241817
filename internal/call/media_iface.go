package call

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Signaler carries call-control frames to the relay.
type Signaler interface {
	Send(sig core.CallSignal) error
}

// MediaSource captures local media: audio always, video when kind asks for it.
type MediaSource interface {
	Acquire(ctx context.Context, kind domain.MediaKind) (LocalMedia, error)
}

type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	// Stop releases every capture device; calling it twice is harmless.
	Stop()
}

type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
}

// MediaTransport is the peer connection as the state machine sees it.
// Callbacks may fire from any goroutine, including synchronously inside a
// method call.
type MediaTransport interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(RemoteTrack))
	Close() error
}

type TransportFactory func() (MediaTransport, error)
