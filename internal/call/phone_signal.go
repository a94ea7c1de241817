package call

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// HandleSignal feeds one call frame from the relay into the state machine.
// Frames for another call id, another peer, or an ended call are dropped.
func (p *Phone) HandleSignal(sig core.CallSignal) {
	if sig.Type == core.EventIncomingCall {
		p.onIncomingCall(sig)
		return
	}

	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil || !s.matches(sig) {
		if s != nil && sig.Type == core.EventCallAccepted {
			p.lateAccept(s, sig)
		}
		log.Debug().Str("module", "call").Str("type", string(sig.Type)).Str("call", sig.CallID).Str("from", string(sig.From)).Msg("stale signal ignored")
		return
	}

	switch sig.Type {
	case core.EventCallAccepted:
		p.onAccepted(s, sig)
	case core.EventPrepare:
		p.onPrepare(s)
	case core.EventReady:
		p.onReady(s)
	case core.EventOffer:
		p.onOffer(s, sig)
	case core.EventAnswer:
		p.onAnswer(s, sig)
	case core.EventICECandidate:
		p.onCandidate(s, sig)
	case core.EventEndCall:
		p.onEndCall(s, sig)
	default:
		log.Debug().Str("module", "call").Str("type", string(sig.Type)).Msg("unexpected call signal")
	}
}

// PeerGone ends the call when the remote session disconnects from the relay.
// While a dial still rings, one callee device leaving only ends it once
// every rung device is gone or busy.
func (p *Phone) PeerGone(evt core.PeerGoneEvent) {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	var gone bool
	reason := domain.EndPeerGone
	switch {
	case s.remoteSession != "":
		gone = evt.Session == s.remoteSession
	case s.role == Caller:
		if lo.Contains(s.devices, evt.Session) || (s.devices == nil && lo.Contains(evt.Identities, s.remote)) {
			gone = !s.deviceOutLocked(evt.Session, domain.EndPeerGone)
			reason = s.outReasonLocked()
		}
	default:
		gone = lo.Contains(evt.Identities, s.remote)
	}
	s.mu.Unlock()
	if gone {
		p.end(s, false, reason)
	}
}

// HandleRinging takes the relay's list of callee devices a dial reached.
func (p *Phone) HandleRinging(evt core.RingingEvent) {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil || evt.CallID != s.id {
		return
	}
	s.mu.Lock()
	if s.role != Caller || s.phase == Ended || s.devices != nil {
		s.mu.Unlock()
		return
	}
	s.devices = lo.Uniq(evt.Sessions)
	var release []core.SessionID
	over := false
	if s.remoteSession != "" {
		release = s.othersLocked()
	} else {
		over = s.allOutLocked()
	}
	reason := s.outReasonLocked()
	s.mu.Unlock()

	log.Debug().Str("module", "call").Str("call", s.id).Int("devices", len(evt.Sessions)).Msg("ringing")
	if over {
		p.end(s, false, reason)
		return
	}
	p.release(s, release)
}

// HandleError reacts to relay error acks that concern the current call.
func (p *Phone) HandleError(evt core.ErrorEvent) {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return
	}
	if evt.CallID != s.id && (evt.CallID != "" || evt.To != s.remote) {
		return
	}
	// only a dial that still rings can be refused by the relay
	s.mu.Lock()
	dialing := s.phase == Dialing
	s.mu.Unlock()
	if !dialing {
		return
	}
	switch evt.Error {
	case core.ErrCodeUnreachable:
		p.end(s, false, domain.EndUnreachable)
	case core.ErrCodeRateLimited:
		p.end(s, false, domain.EndRateLimited)
	}
}

// onEndCall ends the call. A busy answer from one device of a dial that
// other devices still ring only takes that device out.
func (p *Phone) onEndCall(s *CallSession, sig core.CallSignal) {
	reason := lo.Ternary(sig.Reason != "", sig.Reason, domain.EndHangup)
	s.mu.Lock()
	ringing := reason == domain.EndBusy && s.role == Caller && s.phase == Dialing &&
		sig.Session != "" && s.deviceOutLocked(sig.Session, reason)
	s.mu.Unlock()
	if ringing {
		log.Info().Str("module", "call").Str("call", s.id).Str("session", string(sig.Session)).Msg("device busy, still ringing")
		return
	}
	p.end(s, false, reason)
}

// lateAccept releases a device that accepted after another one won.
func (p *Phone) lateAccept(s *CallSession, sig core.CallSignal) {
	s.mu.Lock()
	late := s.role == Caller && sig.CallID == s.id && s.phase != Ended && sig.From == s.remote &&
		sig.Session != "" && s.remoteSession != "" && sig.Session != s.remoteSession
	s.mu.Unlock()
	if late {
		p.release(s, []core.SessionID{sig.Session})
	}
}

// release tells devices that still ring that another one picked up.
func (p *Phone) release(s *CallSession, sessions []core.SessionID) {
	for _, sid := range sessions {
		_ = p.send(s, core.CallSignal{Type: core.EventEndCall, Reason: domain.EndAnsweredElsewhere, ToSession: sid})
	}
}

func (p *Phone) onIncomingCall(sig core.CallSignal) {
	if sig.From == "" || sig.CallID == "" {
		log.Warn().Str("module", "call").Msg("incoming call without caller or call id")
		return
	}
	kind := lo.Ternary(sig.MediaKind.Valid(), sig.MediaKind, domain.MediaAudio)

	p.mu.Lock()
	if cur := p.current; cur != nil {
		p.mu.Unlock()
		if cur.id == sig.CallID {
			return
		}
		log.Info().Str("module", "call").Str("call", sig.CallID).Str("from", string(sig.From)).Msg("busy, rejecting incoming call")
		_ = p.sig.Send(core.CallSignal{
			Type:   core.EventEndCall,
			CallID: sig.CallID,
			To:     sig.From,
			From:   p.local.ID,
			Reason: domain.EndBusy,
		})
		return
	}
	s := newCallSession(p.ctx, sig.CallID, p.local.ID, sig.From, kind, Callee)
	s.mu.Lock()
	s.remoteSession = sig.Session
	s.moveLocked(Ringing)
	s.mu.Unlock()
	p.current = s
	handlers := append([]func(IncomingCall){}, p.onIncoming...)
	p.mu.Unlock()

	p.arm(s, p.ringTimeout)
	p.emit(s)
	in := IncomingCall{CallID: s.id, From: s.remote, DisplayName: sig.DisplayName, Kind: kind}
	for _, fn := range handlers {
		fn(in)
	}
}

// onAccepted runs on the caller: the first device to accept wins.
func (p *Phone) onAccepted(s *CallSession, sig core.CallSignal) {
	s.mu.Lock()
	if s.role != Caller || !s.moveLocked(Negotiating) {
		s.mu.Unlock()
		return
	}
	s.remoteSession = sig.Session
	others := s.othersLocked()
	s.mu.Unlock()

	p.arm(s, p.negotiateTimeout)
	p.emit(s)
	p.release(s, others)
	if _, err := p.openTransport(s); err != nil {
		p.fail(s, err, "open transport")
		return
	}
	_ = p.send(s, core.CallSignal{Type: core.EventPrepare})
}

func (p *Phone) onPrepare(s *CallSession) {
	s.mu.Lock()
	ok := s.role == Callee && s.accepted && s.phase == Ringing
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = p.send(s, core.CallSignal{Type: core.EventReady})
}

func (p *Phone) onReady(s *CallSession) {
	s.mu.Lock()
	ok := s.role == Caller && s.phase == Negotiating && s.transport != nil && !s.offering
	if ok {
		s.offering = true
	}
	t := s.transport
	s.mu.Unlock()
	if !ok {
		return
	}
	go p.offer(s, t)
}

func (p *Phone) onOffer(s *CallSession, sig core.CallSignal) {
	s.mu.Lock()
	ok := s.role == Callee && s.accepted && s.transport == nil &&
		(s.phase == Ringing || s.phase == Negotiating)
	moved := ok && s.phase == Ringing && s.moveLocked(Negotiating)
	if s.remoteSession == "" {
		s.remoteSession = sig.Session
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if moved {
		p.arm(s, p.negotiateTimeout)
		p.emit(s)
	}

	t, err := p.openTransport(s)
	if err != nil {
		p.fail(s, err, "open transport")
		return
	}
	if err := p.applyRemote(s, t, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
		p.fail(s, err, "apply offer")
		return
	}
	go p.answer(s, t)
}

func (p *Phone) onAnswer(s *CallSession, sig core.CallSignal) {
	s.mu.Lock()
	ok := s.role == Caller && s.phase == Negotiating && s.transport != nil && !s.remoteDescSet
	t := s.transport
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := p.applyRemote(s, t, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
		p.fail(s, err, "apply answer")
	}
}

// onCandidate queues remote candidates until the remote description is set.
func (p *Phone) onCandidate(s *CallSession, sig core.CallSignal) {
	if sig.Candidate == nil {
		return
	}
	s.candidates.Lock()
	defer s.candidates.Unlock()

	s.mu.Lock()
	if s.phase == Ended {
		s.mu.Unlock()
		return
	}
	if !s.remoteDescSet || s.transport == nil {
		s.pending = append(s.pending, *sig.Candidate)
		s.mu.Unlock()
		return
	}
	t := s.transport
	s.mu.Unlock()

	if err := t.AddICECandidate(*sig.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", s.id).Msg("add ice candidate")
	}
}

func (p *Phone) openTransport(s *CallSession) (MediaTransport, error) {
	t, err := p.newTransport()
	if err != nil {
		return nil, err
	}
	t.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if !s.live() {
			return
		}
		_ = p.send(s, core.CallSignal{Type: core.EventICECandidate, Candidate: &c})
	})
	t.OnTrack(func(rt RemoteTrack) { p.onRemoteTrack(s, rt) })

	s.mu.Lock()
	if s.phase == Ended {
		s.mu.Unlock()
		_ = t.Close()
		return nil, errCallEnded
	}
	s.transport = t
	s.mu.Unlock()
	return t, nil
}

// applyRemote sets the remote description and then flushes, in arrival
// order, every candidate that came in before it.
func (p *Phone) applyRemote(s *CallSession, t MediaTransport, desc webrtc.SessionDescription) error {
	s.candidates.Lock()
	defer s.candidates.Unlock()

	if err := t.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.mu.Lock()
	s.remoteDescSet = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range queued {
		if err := t.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("call", s.id).Msg("add queued ice candidate")
		}
	}
	log.Debug().Str("module", "call").Str("call", s.id).Str("sdp_type", desc.Type.String()).Int("flushed", len(queued)).Msg("remote description set")
	return nil
}

func (p *Phone) offer(s *CallSession, t MediaTransport) {
	if !p.attachMedia(s, t) {
		return
	}
	desc, err := t.CreateOffer()
	if err != nil {
		p.fail(s, err, "create offer")
		return
	}
	if err := t.SetLocalDescription(desc); err != nil {
		p.fail(s, err, "set local offer")
		return
	}
	if !s.live() {
		return
	}
	_ = p.send(s, core.CallSignal{Type: core.EventOffer, SDP: desc.SDP})
}

func (p *Phone) answer(s *CallSession, t MediaTransport) {
	if !p.attachMedia(s, t) {
		return
	}
	desc, err := t.CreateAnswer()
	if err != nil {
		p.fail(s, err, "create answer")
		return
	}
	if err := t.SetLocalDescription(desc); err != nil {
		p.fail(s, err, "set local answer")
		return
	}
	if !s.live() {
		return
	}
	_ = p.send(s, core.CallSignal{Type: core.EventAnswer, SDP: desc.SDP})
}

// attachMedia acquires local capture and adds its tracks to t. When the call
// ended while capture was pending, the capture is released right away.
func (p *Phone) attachMedia(s *CallSession, t MediaTransport) bool {
	media, err := p.media.Acquire(s.ctx, s.kind)
	if err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", s.id).Str("kind", string(s.kind)).Msg("media unavailable")
		p.end(s, true, domain.EndMediaUnavailable)
		return false
	}

	s.mu.Lock()
	if s.phase == Ended {
		s.mu.Unlock()
		media.Stop()
		return false
	}
	s.localMedia = media
	s.mu.Unlock()

	for _, track := range media.Tracks() {
		if err := t.AddTrack(track); err != nil {
			p.fail(s, err, "add track")
			return false
		}
	}
	return true
}

func (p *Phone) onRemoteTrack(s *CallSession, rt RemoteTrack) {
	s.mu.Lock()
	if s.phase == Ended {
		s.mu.Unlock()
		return
	}
	s.remoteTracks = append(s.remoteTracks, rt)
	moved := s.phase == Negotiating && s.moveLocked(Active)
	if moved {
		s.stopTimerLocked()
	}
	s.mu.Unlock()

	log.Info().Str("module", "call").Str("call", s.id).Str("track", rt.ID()).Str("kind", rt.Kind().String()).Msg("remote track")
	if moved {
		p.emit(s)
	}
}

func (p *Phone) fail(s *CallSession, err error, step string) {
	if err == errCallEnded {
		return
	}
	log.Warn().Err(err).Str("module", "call").Str("call", s.id).Str("step", step).Msg("negotiation failed")
	p.end(s, true, domain.EndNegotiationFailed)
}
