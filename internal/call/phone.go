package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	DefaultRingTimeout      = 45 * time.Second
	DefaultNegotiateTimeout = 30 * time.Second
)

var errCallEnded = errors.New("call ended")

type Options struct {
	Identity     domain.Identity
	Signaler     Signaler
	Media        MediaSource
	NewTransport TransportFactory

	RingTimeout      time.Duration
	NegotiateTimeout time.Duration
}

// IncomingCall is what OnIncoming handlers see while the phone rings.
type IncomingCall struct {
	CallID      string
	From        domain.IdentityID
	DisplayName string
	Kind        domain.MediaKind
}

// Phone drives at most one CallSession for a local identity.
type Phone struct {
	local        domain.Identity
	sig          Signaler
	media        MediaSource
	newTransport TransportFactory

	ringTimeout      time.Duration
	negotiateTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	current    *CallSession
	onIncoming []func(IncomingCall)
	onPhase    []func(Snapshot)
}

func NewPhone(opts Options) *Phone {
	ctx, cancel := context.WithCancel(context.Background())
	return &Phone{
		local:            opts.Identity,
		sig:              opts.Signaler,
		media:            opts.Media,
		newTransport:     opts.NewTransport,
		ringTimeout:      lo.Ternary(opts.RingTimeout > 0, opts.RingTimeout, DefaultRingTimeout),
		negotiateTimeout: lo.Ternary(opts.NegotiateTimeout > 0, opts.NegotiateTimeout, DefaultNegotiateTimeout),
		ctx:              ctx,
		cancel:           cancel,
	}
}

func (p *Phone) OnIncoming(fn func(IncomingCall)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onIncoming = append(p.onIncoming, fn)
}

func (p *Phone) OnPhase(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPhase = append(p.onPhase, fn)
}

// Current reports the call in progress, if any.
func (p *Phone) Current() (Snapshot, bool) {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Dial starts an outgoing call and returns its id.
func (p *Phone) Dial(to domain.IdentityID, kind domain.MediaKind) (string, error) {
	if !kind.Valid() {
		return "", domain.ErrInvalidMediaKind
	}
	if to == "" {
		return "", domain.ErrNoTarget
	}

	p.mu.Lock()
	if p.current != nil {
		p.mu.Unlock()
		return "", domain.ErrBusy
	}
	s := newCallSession(p.ctx, uuid.NewString(), p.local.ID, to, kind, Caller)
	s.mu.Lock()
	s.moveLocked(Dialing)
	s.mu.Unlock()
	p.current = s
	p.mu.Unlock()

	log.Info().Str("module", "call").Str("call", s.id).Str("to", string(to)).Str("kind", string(kind)).Msg("dialing")
	p.arm(s, p.ringTimeout)
	p.emit(s)

	if err := p.send(s, core.CallSignal{
		Type:        core.EventDial,
		DisplayName: p.local.DisplayName,
		MediaKind:   kind,
	}); err != nil {
		p.end(s, false, domain.EndTransportLost)
		return "", err
	}
	return s.id, nil
}

// Accept answers the ringing call. Media is negotiated once the caller asks.
func (p *Phone) Accept() error {
	s := p.ringing()
	if s == nil {
		return domain.ErrNoCall
	}
	s.mu.Lock()
	s.accepted = true
	s.mu.Unlock()
	log.Info().Str("module", "call").Str("call", s.id).Str("from", string(s.remote)).Msg("accepted")
	if err := p.send(s, core.CallSignal{Type: core.EventCallAccepted}); err != nil {
		p.end(s, false, domain.EndTransportLost)
		return err
	}
	return nil
}

func (p *Phone) Decline() error {
	s := p.ringing()
	if s == nil {
		return domain.ErrNoCall
	}
	p.end(s, true, domain.EndDeclined)
	return nil
}

func (p *Phone) Hangup() error {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return domain.ErrNoCall
	}
	p.end(s, true, domain.EndHangup)
	return nil
}

// Drop ends the current call without telling the peer, for when the relay
// connection itself is gone.
func (p *Phone) Drop(reason domain.EndReason) {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s != nil {
		p.end(s, false, reason)
	}
}

// Close hangs up and stops every pending media acquisition.
func (p *Phone) Close() {
	_ = p.Hangup()
	p.cancel()
}

func (p *Phone) ringing() *CallSession {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != Callee || s.phase != Ringing {
		return nil
	}
	return s
}

func (p *Phone) send(s *CallSession, sig core.CallSignal) error {
	sig.CallID = s.id
	sig.To = s.remote
	sig.From = p.local.ID
	if err := p.sig.Send(sig); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", s.id).Str("type", string(sig.Type)).Msg("signal not sent")
		return err
	}
	return nil
}

func (p *Phone) emit(s *CallSession) {
	snap := s.Snapshot()
	p.mu.Lock()
	handlers := append([]func(Snapshot){}, p.onPhase...)
	p.mu.Unlock()
	log.Info().Str("module", "call").Str("call", snap.CallID).Str("role", snap.Role.String()).Str("phase", snap.Phase.String()).Str("reason", string(snap.Reason)).Msg("phase")
	for _, fn := range handlers {
		fn(snap)
	}
}

// arm replaces the session timer. Expiry hangs up unless the call moved on
// to Active or Ended meanwhile.
func (p *Phone) arm(s *CallSession, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Ended {
		return
	}
	s.stopTimerLocked()
	s.timer = time.AfterFunc(d, func() { p.onTimeout(s) })
}

func (p *Phone) onTimeout(s *CallSession) {
	s.mu.Lock()
	phase := s.phase
	// An unanswered callee device stays quiet: the caller runs its own timer
	// and another device of ours may have picked up.
	notify := !(s.role == Callee && phase == Ringing && !s.accepted)
	s.mu.Unlock()
	if phase == Active || phase == Ended {
		return
	}
	log.Info().Str("module", "call").Str("call", s.id).Str("phase", phase.String()).Msg("call timed out")
	p.end(s, notify, domain.EndTimeout)
}

// end moves s into Ended and releases everything it holds. Only the first
// call has an effect.
func (p *Phone) end(s *CallSession, notify bool, reason domain.EndReason) {
	s.mu.Lock()
	if s.phase == Ended {
		s.mu.Unlock()
		return
	}
	s.moveLocked(Ended)
	s.reason = reason
	transport, media := s.transport, s.localMedia
	s.transport, s.localMedia = nil, nil
	s.pending = nil
	s.stopTimerLocked()
	s.mu.Unlock()

	s.cancel()
	p.mu.Lock()
	if p.current == s {
		p.current = nil
	}
	p.mu.Unlock()

	if transport != nil {
		if err := transport.Close(); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("call", s.id).Msg("transport close")
		}
	}
	if media != nil {
		media.Stop()
	}
	if notify {
		_ = p.send(s, core.CallSignal{Type: core.EventEndCall, Reason: reason})
	}
	p.emit(s)
}
