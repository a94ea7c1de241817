package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/pion/webrtc/v4"
)

type recordingSignaler struct {
	mu   sync.Mutex
	sent []core.CallSignal
	err  error
}

func (r *recordingSignaler) Send(sig core.CallSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sig)
	return nil
}

func (r *recordingSignaler) ofType(t core.EventType) []core.CallSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.CallSignal
	for _, s := range r.sent {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

type fakeRemoteTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t fakeRemoteTrack) ID() string                { return t.id }
func (t fakeRemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }

// fakeTransport writes its track kinds into the SDP and raises one remote
// track per kind found in the peer's description.
type fakeTransport struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	local   *webrtc.SessionDescription
	remote  *webrtc.SessionDescription
	added   []webrtc.ICECandidateInit
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(RemoteTrack)
	closed  int
}

func (t *fakeTransport) AddTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = append(t.tracks, track)
	return nil
}

func (t *fakeTransport) describe(typ webrtc.SDPType) (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed > 0 {
		return webrtc.SessionDescription{}, errors.New("transport closed")
	}
	kinds := make([]string, 0, len(t.tracks))
	for _, tr := range t.tracks {
		kinds = append(kinds, tr.Kind().String())
	}
	return webrtc.SessionDescription{Type: typ, SDP: "fake:" + strings.Join(kinds, ",")}, nil
}

func (t *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.describe(webrtc.SDPTypeOffer)
}

func (t *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.describe(webrtc.SDPTypeAnswer)
}

func (t *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	t.mu.Lock()
	t.local = &desc
	onICE := t.onICE
	t.mu.Unlock()
	if onICE != nil {
		go onICE(webrtc.ICECandidateInit{Candidate: "candidate:" + desc.Type.String()})
	}
	return nil
}

func (t *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	t.mu.Lock()
	t.remote = &desc
	onTrack := t.onTrack
	t.mu.Unlock()
	kinds := strings.TrimPrefix(desc.SDP, "fake:")
	if kinds == "" || onTrack == nil {
		return nil
	}
	for i, k := range strings.Split(kinds, ",") {
		track := fakeRemoteTrack{id: fmt.Sprintf("remote-%d", i), kind: webrtc.NewRTPCodecType(k)}
		go onTrack(track)
	}
	return nil
}

func (t *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.added = append(t.added, c)
	return nil
}

func (t *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onICE = fn
}

func (t *fakeTransport) OnTrack(fn func(RemoteTrack)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrack = fn
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.added))
	for _, c := range t.added {
		out = append(out, c.Candidate)
	}
	return out
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type transportLog struct {
	mu   sync.Mutex
	made []*fakeTransport
	err  error
}

func (l *transportLog) factory() (MediaTransport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	t := &fakeTransport{}
	l.made = append(l.made, t)
	return t, nil
}

func (l *transportLog) last() *fakeTransport {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.made) == 0 {
		return nil
	}
	return l.made[len(l.made)-1]
}

type fakeMedia struct {
	tracks []webrtc.TrackLocal
	stops  atomic.Int32
}

func (m *fakeMedia) Tracks() []webrtc.TrackLocal { return m.tracks }
func (m *fakeMedia) Stop()                       { m.stops.Add(1) }

// fakeSource hands out real static RTP tracks. With a gate set, Acquire
// blocks until the gate closes; ignoreCtx keeps it blocked through a cancel.
type fakeSource struct {
	mu        sync.Mutex
	err       error
	gate      chan struct{}
	ignoreCtx bool
	acquired  []*fakeMedia
}

func (s *fakeSource) Acquire(ctx context.Context, kind domain.MediaKind) (LocalMedia, error) {
	if s.gate != nil {
		if s.ignoreCtx {
			<-s.gate
		} else {
			select {
			case <-s.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	audio, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "relay")
	if err != nil {
		return nil, err
	}
	m := &fakeMedia{tracks: []webrtc.TrackLocal{audio}}
	if kind.WantsVideo() {
		video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "relay")
		if err != nil {
			return nil, err
		}
		m.tracks = append(m.tracks, video)
	}
	s.mu.Lock()
	s.acquired = append(s.acquired, m)
	s.mu.Unlock()
	return m, nil
}

func (s *fakeSource) media() []*fakeMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeMedia{}, s.acquired...)
}

// switchboard stands in for the relay: it stamps the sender session, turns
// dial into incoming-call and delivers frames in order on one goroutine.
type switchboard struct {
	mu     sync.Mutex
	phones map[domain.IdentityID]*Phone
	queue  chan core.CallSignal
	done   chan struct{}
}

func newSwitchboard() *switchboard {
	b := &switchboard{
		phones: make(map[domain.IdentityID]*Phone),
		queue:  make(chan core.CallSignal, 1024),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *switchboard) run() {
	for {
		select {
		case <-b.done:
			return
		case sig := <-b.queue:
			b.mu.Lock()
			p := b.phones[sig.To]
			b.mu.Unlock()
			if p != nil {
				p.HandleSignal(sig)
			}
		}
	}
}

func (b *switchboard) stop() { close(b.done) }

type boardLine struct {
	b  *switchboard
	id domain.IdentityID
}

func (l boardLine) Send(sig core.CallSignal) error {
	sig.Session = core.SessionID("sess-" + l.id)
	if sig.Type == core.EventDial {
		sig.Type = core.EventIncomingCall
	}
	l.b.queue <- sig
	return nil
}

func (b *switchboard) attach(id domain.IdentityID, opts Options) *Phone {
	opts.Identity = domain.Identity{ID: id, DisplayName: string(id)}
	opts.Signaler = boardLine{b: b, id: id}
	p := NewPhone(opts)
	b.mu.Lock()
	b.phones[id] = p
	b.mu.Unlock()
	return p
}

type phaseLog struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (l *phaseLog) record(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *phaseLog) last() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snaps) == 0 {
		return Snapshot{}
	}
	return l.snaps[len(l.snaps)-1]
}

func (l *phaseLog) phases() []Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Phase, 0, len(l.snaps))
	for _, s := range l.snaps {
		out = append(out, s.Phase)
	}
	return out
}

func (l *phaseLog) has(p Phase) bool {
	for _, seen := range l.phases() {
		if seen == p {
			return true
		}
	}
	return false
}
