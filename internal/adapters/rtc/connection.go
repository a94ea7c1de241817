package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Relay/internal/call"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func WebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

// Factory builds one PeerTransport per call on a shared pion API.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	recv   *Receiver

	// OnFailed runs when a transport's peer connection fails or closes
	// from the remote side.
	OnFailed func()
}

func NewFactory(iceServers []string, recv *Receiver) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))
	return &Factory{api: api, config: WebRTCConfig(iceServers), recv: recv}, nil
}

func (f *Factory) New() (call.MediaTransport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newPeerTransport(pc, f.recv, f.OnFailed), nil
}

// PeerTransport adapts a pion PeerConnection to call.MediaTransport.
type PeerTransport struct {
	pc     *webrtc.PeerConnection
	recv   *Receiver
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(call.RemoteTrack)
	tracks  []string
	closed  bool
}

func newPeerTransport(pc *webrtc.PeerConnection, recv *Receiver, onFailed func()) *PeerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &PeerTransport{pc: pc, recv: recv, ctx: ctx, cancel: cancel}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s != webrtc.PeerConnectionStateFailed {
			return
		}
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if !closed && onFailed != nil {
			onFailed()
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		t.mu.Lock()
		fn := t.onICE
		t.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if t.recv != nil {
			t.recv.Start(t.ctx, track.ID(), track)
			t.mu.Lock()
			t.tracks = append(t.tracks, track.ID())
			t.mu.Unlock()
		}
		t.mu.Lock()
		fn := t.onTrack
		t.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})
	return t
}

func (t *PeerTransport) AddTrack(track webrtc.TrackLocal) error {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return err
	}
	// RTCP has to be read for the interceptors (NACK, reports) to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (t *PeerTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *PeerTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *PeerTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *PeerTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *PeerTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

func (t *PeerTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (t *PeerTransport) OnTrack(fn func(call.RemoteTrack)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrack = fn
}

func (t *PeerTransport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

func (t *PeerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	tracks := t.tracks
	t.mu.Unlock()

	t.cancel()
	if t.recv != nil {
		for _, id := range tracks {
			t.recv.Stop(id)
		}
	}
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Msg("closed")
	return nil
}
