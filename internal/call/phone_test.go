package call

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type rig struct {
	phone      *Phone
	sig        *recordingSignaler
	source     *fakeSource
	transports *transportLog
	phases     *phaseLog
}

func newRig(t *testing.T, id domain.IdentityID, mutate func(*Options)) *rig {
	t.Helper()
	r := &rig{
		sig:        &recordingSignaler{},
		source:     &fakeSource{},
		transports: &transportLog{},
		phases:     &phaseLog{},
	}
	opts := Options{
		Identity:     domain.Identity{ID: id, DisplayName: string(id)},
		Signaler:     r.sig,
		Media:        r.source,
		NewTransport: r.transports.factory,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r.phone = NewPhone(opts)
	r.phone.OnPhase(r.phases.record)
	t.Cleanup(r.phone.Close)
	return r
}

func (r *rig) phase() Phase {
	snap, ok := r.phone.Current()
	if !ok {
		return Ended
	}
	return snap.Phase
}

func candidate(text string) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: text}
}

// ringingCallee puts the rig into Ringing for call c1 from alice and accepts.
func ringingCallee(t *testing.T, r *rig) {
	t.Helper()
	r.phone.HandleSignal(core.CallSignal{
		Type: core.EventIncomingCall, CallID: "c1", From: "alice", To: "bob",
		MediaKind: domain.MediaAudio, Session: "s-alice",
	})
	require.Equal(t, Ringing, r.phase())
	require.NoError(t, r.phone.Accept())
}

// activeCaller dials bob and walks call-accepted, ready and answer by hand.
func activeCaller(t *testing.T, r *rig) string {
	t.Helper()
	req := require.New(t)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)

	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", To: "alice", Session: "s-bob"})
	req.Equal(Negotiating, r.phase())
	req.Len(r.sig.ofType(core.EventPrepare), 1)

	r.phone.HandleSignal(core.CallSignal{Type: core.EventReady, CallID: callID, From: "bob", To: "alice", Session: "s-bob"})
	req.Eventually(func() bool { return len(r.sig.ofType(core.EventOffer)) == 1 }, waitFor, tick)

	r.phone.HandleSignal(core.CallSignal{Type: core.EventAnswer, CallID: callID, From: "bob", To: "alice", Session: "s-bob", SDP: "fake:audio"})
	req.Eventually(func() bool { return r.phases.has(Active) }, waitFor, tick)
	return callID
}

func TestPhase_Transitions(t *testing.T) {
	req := require.New(t)

	req.True(Idle.CanMoveTo(Dialing))
	req.True(Idle.CanMoveTo(Ringing))
	req.True(Dialing.CanMoveTo(Negotiating))
	req.True(Ringing.CanMoveTo(Negotiating))
	req.True(Negotiating.CanMoveTo(Active))
	for _, p := range []Phase{Idle, Dialing, Ringing, Negotiating, Active} {
		req.True(p.CanMoveTo(Ended), p.String())
	}

	req.False(Dialing.CanMoveTo(Active))
	req.False(Ringing.CanMoveTo(Dialing))
	req.False(Active.CanMoveTo(Negotiating))
	req.False(Ended.CanMoveTo(Idle))
	req.False(Ended.CanMoveTo(Ended))
}

func TestPhone_VideoCall_BothSidesActive(t *testing.T) {
	req := require.New(t)
	board := newSwitchboard()
	defer board.stop()

	aliceMedia, bobMedia := &fakeSource{}, &fakeSource{}
	aliceTransports, bobTransports := &transportLog{}, &transportLog{}
	alice := board.attach("alice", Options{Media: aliceMedia, NewTransport: aliceTransports.factory})
	bob := board.attach("bob", Options{Media: bobMedia, NewTransport: bobTransports.factory})
	defer alice.Close()
	defer bob.Close()

	incoming := make(chan IncomingCall, 1)
	bob.OnIncoming(func(in IncomingCall) { incoming <- in })

	// Given alice dials bob with video
	callID, err := alice.Dial("bob", domain.MediaVideo)
	req.NoError(err)

	// When bob picks up
	var in IncomingCall
	select {
	case in = <-incoming:
	case <-time.After(waitFor):
		t.Fatal("bob never rang")
	}
	req.Equal(callID, in.CallID)
	req.Equal(domain.IdentityID("alice"), in.From)
	req.Equal(domain.MediaVideo, in.Kind)
	req.NoError(bob.Accept())

	// Then both sides reach Active with an audio and a video track each
	req.Eventually(func() bool {
		a, okA := alice.Current()
		b, okB := bob.Current()
		return okA && okB && a.Phase == Active && b.Phase == Active &&
			a.RemoteTracks == 2 && b.RemoteTracks == 2
	}, waitFor, tick)
	req.Len(aliceMedia.media(), 1)
	req.Len(aliceMedia.media()[0].Tracks(), 2)
	req.Eventually(func() bool { return len(bobTransports.last().candidates()) == 1 }, waitFor, tick)

	// When alice hangs up
	req.NoError(alice.Hangup())

	// Then bob ends too and every local capture stops exactly once
	req.Eventually(func() bool {
		_, okB := bob.Current()
		return !okB
	}, waitFor, tick)
	req.Equal(int32(1), aliceMedia.media()[0].stops.Load())
	req.Eventually(func() bool { return len(bobMedia.media()) == 1 && bobMedia.media()[0].stops.Load() == 1 }, waitFor, tick)
	req.Equal(1, aliceTransports.last().closeCount())
	req.Equal(1, bobTransports.last().closeCount())
}

func TestPhone_CandidatesQueuedUntilRemoteDescription(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", nil)
	ringingCallee(t, r)

	// Given candidates that overtake the offer
	for _, c := range []string{"cand-1", "cand-2"} {
		r.phone.HandleSignal(core.CallSignal{Type: core.EventICECandidate, CallID: "c1", From: "alice", Session: "s-alice", Candidate: candidate(c)})
	}
	r.phone.HandleSignal(core.CallSignal{Type: core.EventPrepare, CallID: "c1", From: "alice", Session: "s-alice"})
	req.Len(r.sig.ofType(core.EventReady), 1)
	req.Nil(r.transports.last())

	// When the offer arrives and one more candidate follows it
	r.phone.HandleSignal(core.CallSignal{Type: core.EventOffer, CallID: "c1", From: "alice", Session: "s-alice", SDP: "fake:audio"})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventICECandidate, CallID: "c1", From: "alice", Session: "s-alice", Candidate: candidate("cand-3")})

	// Then all three are applied once, in arrival order
	tr := r.transports.last()
	req.NotNil(tr)
	req.Equal([]string{"cand-1", "cand-2", "cand-3"}, tr.candidates())
	req.Eventually(func() bool { return len(r.sig.ofType(core.EventAnswer)) == 1 }, waitFor, tick)
	req.Eventually(func() bool { return r.phase() == Active }, waitFor, tick)
}

func TestPhone_CallerQueuesCandidatesUntilAnswer(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)
	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", Session: "s-bob"})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventReady, CallID: callID, From: "bob", Session: "s-bob"})
	req.Eventually(func() bool { return len(r.sig.ofType(core.EventOffer)) == 1 }, waitFor, tick)
	tr := r.transports.last()

	// Given the callee's candidates overtake its answer
	for _, c := range []string{"cand-1", "cand-2"} {
		r.phone.HandleSignal(core.CallSignal{Type: core.EventICECandidate, CallID: callID, From: "bob", Session: "s-bob", Candidate: candidate(c)})
	}
	req.Empty(tr.candidates())

	// When the answer arrives and one more candidate follows it
	r.phone.HandleSignal(core.CallSignal{Type: core.EventAnswer, CallID: callID, From: "bob", Session: "s-bob", SDP: "fake:audio"})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventICECandidate, CallID: callID, From: "bob", Session: "s-bob", Candidate: candidate("cand-3")})

	// Then all three are applied once, in arrival order
	req.Equal([]string{"cand-1", "cand-2", "cand-3"}, tr.candidates())
	req.Eventually(func() bool { return r.phase() == Active }, waitFor, tick)
}

func TestPhone_Hangup_IsIdempotent(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID := activeCaller(t, r)
	tr := r.transports.last()

	req.NoError(r.phone.Hangup())
	req.ErrorIs(r.phone.Hangup(), domain.ErrNoCall)
	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: callID, From: "bob", Session: "s-bob"})

	ends := r.sig.ofType(core.EventEndCall)
	req.Len(ends, 1)
	req.Equal(domain.EndHangup, ends[0].Reason)
	req.Equal(domain.IdentityID("bob"), ends[0].To)
	req.Equal(callID, ends[0].CallID)
	req.Equal(1, tr.closeCount())
	req.Equal(int32(1), r.source.media()[0].stops.Load())
	req.Equal(Ended, r.phases.last().Phase)
	req.Equal(domain.EndHangup, r.phases.last().Reason)
}

func TestPhone_StaleSignalsIgnored(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", nil)
	ringingCallee(t, r)

	// Given signals for another call id, from another identity and another session
	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: "old", From: "alice", Session: "s-alice"})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: "c1", From: "mallory", Session: "s-alice"})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: "c1", From: "alice", Session: "s-other"})

	// Then the ringing call is untouched
	req.Equal(Ringing, r.phase())

	// When the real peer ends it, later frames for that call change nothing
	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: "c1", From: "alice", Session: "s-alice", Reason: domain.EndHangup})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventOffer, CallID: "c1", From: "alice", Session: "s-alice", SDP: "fake:audio"})

	_, ok := r.phone.Current()
	req.False(ok)
	req.Nil(r.transports.last())
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_PeerGoneDuringActive(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	activeCaller(t, r)
	tr := r.transports.last()

	// An unrelated session leaving changes nothing
	r.phone.PeerGone(core.PeerGoneEvent{Type: core.EventPeerGone, Session: "s-carol", Identities: []domain.IdentityID{"bob"}})
	req.Equal(Active, r.phase())

	r.phone.PeerGone(core.PeerGoneEvent{Type: core.EventPeerGone, Session: "s-bob", Identities: []domain.IdentityID{"bob"}})

	_, ok := r.phone.Current()
	req.False(ok)
	req.Equal(domain.EndPeerGone, r.phases.last().Reason)
	req.Equal(1, tr.closeCount())
	req.Equal(int32(1), r.source.media()[0].stops.Load())
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_PeerGoneWhileDialing_WaitsForEveryDevice(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)

	// Given the relay rang two devices of bob
	r.phone.HandleRinging(core.RingingEvent{Type: core.EventRinging, CallID: callID, To: "bob", Sessions: []core.SessionID{"s-bobA", "s-bobB"}})

	// When one of them leaves, bob still rings
	r.phone.PeerGone(core.PeerGoneEvent{Type: core.EventPeerGone, Session: "s-bobA", Identities: []domain.IdentityID{"bob"}})
	req.Equal(Dialing, r.phase())

	// When the last one leaves, the dial ends
	r.phone.PeerGone(core.PeerGoneEvent{Type: core.EventPeerGone, Session: "s-bobB", Identities: []domain.IdentityID{"bob"}})
	_, ok := r.phone.Current()
	req.False(ok)
	req.Equal(domain.EndPeerGone, r.phases.last().Reason)
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_BusyDeviceDoesNotEndDial(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)

	// Given device A answers busy before the relay said which devices ring
	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: callID, From: "bob", To: "alice", Session: "s-bobA", Reason: domain.EndBusy})
	req.Equal(Dialing, r.phase())
	r.phone.HandleRinging(core.RingingEvent{Type: core.EventRinging, CallID: callID, To: "bob", Sessions: []core.SessionID{"s-bobA", "s-bobB"}})
	req.Equal(Dialing, r.phase())

	// When device B accepts
	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", To: "alice", Session: "s-bobB"})

	// Then the call negotiates with B and the busy device is left alone
	req.Equal(Negotiating, r.phase())
	prepares := r.sig.ofType(core.EventPrepare)
	req.Len(prepares, 1)
	req.Equal(callID, prepares[0].CallID)
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_EveryDeviceBusyEndsDial(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)
	r.phone.HandleRinging(core.RingingEvent{Type: core.EventRinging, CallID: callID, To: "bob", Sessions: []core.SessionID{"s-bobA", "s-bobB"}})

	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: callID, From: "bob", Session: "s-bobA", Reason: domain.EndBusy})
	r.phone.PeerGone(core.PeerGoneEvent{Type: core.EventPeerGone, Session: "s-bobB", Identities: []domain.IdentityID{"bob"}})

	_, ok := r.phone.Current()
	req.False(ok)
	req.Equal(domain.EndBusy, r.phases.last().Reason)
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_AcceptReleasesOtherDevices(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)
	r.phone.HandleRinging(core.RingingEvent{Type: core.EventRinging, CallID: callID, To: "bob", Sessions: []core.SessionID{"s-bobA", "s-bobB", "s-bobC"}})

	// When device A accepts first
	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", Session: "s-bobA"})

	// Then B and C each get an end-call addressed to them alone
	ends := r.sig.ofType(core.EventEndCall)
	req.Len(ends, 2)
	req.ElementsMatch([]core.SessionID{"s-bobB", "s-bobC"}, []core.SessionID{ends[0].ToSession, ends[1].ToSession})
	for _, e := range ends {
		req.Equal(domain.EndAnsweredElsewhere, e.Reason)
		req.Equal(domain.IdentityID("bob"), e.To)
		req.Equal(callID, e.CallID)
	}

	// When B accepts anyway, it is released again and the call stays with A
	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", Session: "s-bobB"})
	ends = r.sig.ofType(core.EventEndCall)
	req.Len(ends, 3)
	req.Equal(core.SessionID("s-bobB"), ends[2].ToSession)
	req.Len(r.sig.ofType(core.EventPrepare), 1)

	// And a relay error for a released device does not touch the call
	r.phone.HandleError(core.ErrorEvent{Type: core.EventError, Error: core.ErrCodeUnreachable, Ref: core.EventEndCall, To: "bob", CallID: callID})
	req.Equal(Negotiating, r.phase())
}

func TestPhone_RingingAfterAcceptReleasesOtherDevices(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)

	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", Session: "s-bobA"})
	req.Empty(r.sig.ofType(core.EventEndCall))

	r.phone.HandleRinging(core.RingingEvent{Type: core.EventRinging, CallID: callID, To: "bob", Sessions: []core.SessionID{"s-bobA", "s-bobB"}})

	ends := r.sig.ofType(core.EventEndCall)
	req.Len(ends, 1)
	req.Equal(core.SessionID("s-bobB"), ends[0].ToSession)
	req.Equal(Negotiating, r.phase())
}

func TestPhone_AnsweredElsewhereEndsRingingDevice(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", nil)
	r.phone.HandleSignal(core.CallSignal{Type: core.EventIncomingCall, CallID: "c1", From: "alice", Session: "s-alice"})
	req.Equal(Ringing, r.phase())

	r.phone.HandleSignal(core.CallSignal{Type: core.EventEndCall, CallID: "c1", From: "alice", Session: "s-alice", ToSession: "s-bob", Reason: domain.EndAnsweredElsewhere})

	_, ok := r.phone.Current()
	req.False(ok)
	req.Equal(domain.EndAnsweredElsewhere, r.phases.last().Reason)
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_AcceptSendFailureEndsCall(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", nil)
	r.phone.HandleSignal(core.CallSignal{Type: core.EventIncomingCall, CallID: "c1", From: "alice", Session: "s-alice"})

	r.sig.err = errors.New("socket gone")
	req.Error(r.phone.Accept())

	_, ok := r.phone.Current()
	req.False(ok)
	req.Equal(domain.EndTransportLost, r.phases.last().Reason)
}

func TestPhone_MediaFailure_NotifiesPeer(t *testing.T) {
	t.Run("caller", func(t *testing.T) {
		req := require.New(t)
		r := newRig(t, "alice", nil)
		r.source.err = errors.New("no microphone")
		callID, err := r.phone.Dial("bob", domain.MediaAudio)
		req.NoError(err)
		r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", Session: "s-bob"})

		r.phone.HandleSignal(core.CallSignal{Type: core.EventReady, CallID: callID, From: "bob", Session: "s-bob"})

		req.Eventually(func() bool { return len(r.sig.ofType(core.EventEndCall)) == 1 }, waitFor, tick)
		req.Equal(domain.EndMediaUnavailable, r.sig.ofType(core.EventEndCall)[0].Reason)
		req.Empty(r.sig.ofType(core.EventOffer))
		req.Equal(1, r.transports.last().closeCount())
	})

	t.Run("callee", func(t *testing.T) {
		req := require.New(t)
		r := newRig(t, "bob", nil)
		r.source.err = errors.New("no camera")
		ringingCallee(t, r)

		r.phone.HandleSignal(core.CallSignal{Type: core.EventOffer, CallID: "c1", From: "alice", Session: "s-alice", SDP: "fake:audio"})

		req.Eventually(func() bool { return len(r.sig.ofType(core.EventEndCall)) == 1 }, waitFor, tick)
		end := r.sig.ofType(core.EventEndCall)[0]
		req.Equal(domain.EndMediaUnavailable, end.Reason)
		req.Equal(domain.IdentityID("alice"), end.To)
		req.Empty(r.sig.ofType(core.EventAnswer))
	})
}

func TestPhone_EndedWhileAcquiring_ReleasesMedia(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	r.source.gate = make(chan struct{})
	r.source.ignoreCtx = true
	callID, err := r.phone.Dial("bob", domain.MediaVideo)
	req.NoError(err)
	r.phone.HandleSignal(core.CallSignal{Type: core.EventCallAccepted, CallID: callID, From: "bob", Session: "s-bob"})
	r.phone.HandleSignal(core.CallSignal{Type: core.EventReady, CallID: callID, From: "bob", Session: "s-bob"})

	// When the call ends before capture returns
	req.NoError(r.phone.Hangup())
	close(r.source.gate)

	// Then the late capture is stopped and never offered
	req.Eventually(func() bool {
		m := r.source.media()
		return len(m) == 1 && m[0].stops.Load() == 1
	}, waitFor, tick)
	req.Empty(r.sig.ofType(core.EventOffer))
	req.Empty(r.transports.last().tracks)
}

func TestPhone_Busy(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", nil)
	ringingCallee(t, r)

	// A second caller is turned away without disturbing the first call
	r.phone.HandleSignal(core.CallSignal{Type: core.EventIncomingCall, CallID: "c2", From: "carol", Session: "s-carol", MediaKind: domain.MediaAudio})

	ends := r.sig.ofType(core.EventEndCall)
	req.Len(ends, 1)
	req.Equal(domain.EndBusy, ends[0].Reason)
	req.Equal(domain.IdentityID("carol"), ends[0].To)
	req.Equal("c2", ends[0].CallID)
	snap, ok := r.phone.Current()
	req.True(ok)
	req.Equal("c1", snap.CallID)
	req.Equal(Ringing, snap.Phase)

	_, err := r.phone.Dial("dave", domain.MediaAudio)
	req.ErrorIs(err, domain.ErrBusy)
}

func TestPhone_Decline(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", nil)
	r.phone.HandleSignal(core.CallSignal{Type: core.EventIncomingCall, CallID: "c1", From: "alice", Session: "s-alice"})

	req.NoError(r.phone.Decline())

	ends := r.sig.ofType(core.EventEndCall)
	req.Len(ends, 1)
	req.Equal(domain.EndDeclined, ends[0].Reason)
	req.ErrorIs(r.phone.Accept(), domain.ErrNoCall)
}

func TestPhone_RingTimeout(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", func(o *Options) { o.RingTimeout = 20 * time.Millisecond })

	_, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)

	req.Eventually(func() bool { return len(r.sig.ofType(core.EventEndCall)) == 1 }, waitFor, tick)
	req.Equal(domain.EndTimeout, r.sig.ofType(core.EventEndCall)[0].Reason)
	_, ok := r.phone.Current()
	req.False(ok)
}

func TestPhone_UnansweredDeviceTimesOutQuietly(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "bob", func(o *Options) { o.RingTimeout = 20 * time.Millisecond })
	r.phone.HandleSignal(core.CallSignal{Type: core.EventIncomingCall, CallID: "c1", From: "alice", Session: "s-alice"})

	req.Eventually(func() bool { return r.phases.last().Phase == Ended }, waitFor, tick)
	req.Empty(r.sig.ofType(core.EventEndCall))
	req.Equal(domain.EndTimeout, r.phases.last().Reason)
}

func TestPhone_UnreachableEndsDial(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)
	callID, err := r.phone.Dial("bob", domain.MediaAudio)
	req.NoError(err)

	r.phone.HandleError(core.ErrorEvent{Type: core.EventError, Error: core.ErrCodeUnreachable, Ref: core.EventDial, To: "bob", CallID: "other"})
	req.Equal(Dialing, r.phase())

	r.phone.HandleError(core.ErrorEvent{Type: core.EventError, Error: core.ErrCodeUnreachable, Ref: core.EventDial, To: "bob", CallID: callID})

	_, ok := r.phone.Current()
	req.False(ok)
	req.Equal(domain.EndUnreachable, r.phases.last().Reason)
	req.Empty(r.sig.ofType(core.EventEndCall))
}

func TestPhone_Dial_Validates(t *testing.T) {
	req := require.New(t)
	r := newRig(t, "alice", nil)

	_, err := r.phone.Dial("bob", "hologram")
	req.ErrorIs(err, domain.ErrInvalidMediaKind)
	_, err = r.phone.Dial("", domain.MediaAudio)
	req.ErrorIs(err, domain.ErrNoTarget)

	r.sig.err = errors.New("socket gone")
	_, err = r.phone.Dial("bob", domain.MediaAudio)
	req.Error(err)
	_, ok := r.phone.Current()
	req.False(ok)
}
