package domain

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool { return k == MediaAudio || k == MediaVideo }

// WantsVideo reports whether local capture must include a camera track.
func (k MediaKind) WantsVideo() bool { return k == MediaVideo }

// EndReason travels with end-call so the peer can tell why a call stopped.
type EndReason string

const (
	EndHangup            EndReason = "hangup"
	EndDeclined          EndReason = "declined"
	EndBusy              EndReason = "busy"
	EndTimeout           EndReason = "timeout"
	EndMediaUnavailable  EndReason = "media-unavailable"
	EndNegotiationFailed EndReason = "negotiation-failed"
	EndPeerGone          EndReason = "peer-gone"
	EndUnreachable       EndReason = "unreachable"
	EndTransportLost     EndReason = "transport-lost"
	EndRateLimited       EndReason = "rate-limited"
	EndAnsweredElsewhere EndReason = "answered-elsewhere"
)
