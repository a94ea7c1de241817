package call

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// CallSession is one call from the first dial (or incoming-call) to Ended.
// It owns the transport and the local media; both are released exactly once
// on the way into Ended.
type CallSession struct {
	id     string
	local  domain.IdentityID
	remote domain.IdentityID
	kind   domain.MediaKind
	role   Role

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	phase         Phase
	reason        domain.EndReason
	remoteSession core.SessionID
	accepted      bool
	offering      bool
	transport     MediaTransport
	localMedia    LocalMedia
	remoteTracks  []RemoteTrack
	pending       []webrtc.ICECandidateInit
	remoteDescSet bool
	timer         *time.Timer

	// Caller side before a device accepted: the callee sessions the dial
	// rang, and the ones that answered busy or went away.
	devices []core.SessionID
	out     map[core.SessionID]domain.EndReason

	// candidates orders remote-description application against candidate
	// application so queued candidates go in before any later arrival.
	candidates sync.Mutex
}

// Snapshot is a read-only view handed to phase listeners.
type Snapshot struct {
	CallID       string
	Local        domain.IdentityID
	Remote       domain.IdentityID
	Kind         domain.MediaKind
	Role         Role
	Phase        Phase
	Reason       domain.EndReason
	RemoteTracks int
}

func newCallSession(parent context.Context, id string, local, remote domain.IdentityID, kind domain.MediaKind, role Role) *CallSession {
	ctx, cancel := context.WithCancel(parent)
	return &CallSession{
		id:     id,
		local:  local,
		remote: remote,
		kind:   kind,
		role:   role,
		ctx:    ctx,
		cancel: cancel,
		phase:  Idle,
	}
}

func (s *CallSession) ID() string { return s.id }

func (s *CallSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *CallSession) snapshotLocked() Snapshot {
	return Snapshot{
		CallID:       s.id,
		Local:        s.local,
		Remote:       s.remote,
		Kind:         s.kind,
		Role:         s.role,
		Phase:        s.phase,
		Reason:       s.reason,
		RemoteTracks: len(s.remoteTracks),
	}
}

// moveLocked applies one transition; illegal moves are logged and ignored.
func (s *CallSession) moveLocked(next Phase) bool {
	if !s.phase.CanMoveTo(next) {
		log.Debug().Str("module", "call").Str("call", s.id).Str("from", s.phase.String()).Str("to", next.String()).Msg("illegal transition ignored")
		return false
	}
	s.phase = next
	return true
}

func (s *CallSession) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != Ended
}

// matches reports whether sig belongs to this call and the peer it talks to.
func (s *CallSession) matches(sig core.CallSignal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.CallID != s.id || s.phase == Ended {
		return false
	}
	if sig.From != "" && sig.From != s.remote {
		return false
	}
	if s.remoteSession != "" && sig.Session != "" && sig.Session != s.remoteSession {
		return false
	}
	return true
}

// deviceOutLocked records that one rung device dropped out of a dial and
// reports whether any device is still ringing.
func (s *CallSession) deviceOutLocked(sid core.SessionID, reason domain.EndReason) bool {
	if s.out == nil {
		s.out = make(map[core.SessionID]domain.EndReason)
	}
	s.out[sid] = reason
	return !s.allOutLocked()
}

// allOutLocked is false until the rung devices are known.
func (s *CallSession) allOutLocked() bool {
	return len(s.devices) > 0 && lo.EveryBy(s.devices, func(sid core.SessionID) bool {
		_, gone := s.out[sid]
		return gone
	})
}

// outReasonLocked is busy when any device answered busy.
func (s *CallSession) outReasonLocked() domain.EndReason {
	return lo.Ternary(lo.Contains(lo.Values(s.out), domain.EndBusy), domain.EndBusy, domain.EndPeerGone)
}

// othersLocked lists the rung devices still ringing besides the one that
// accepted.
func (s *CallSession) othersLocked() []core.SessionID {
	return lo.Filter(s.devices, func(sid core.SessionID, _ int) bool {
		_, gone := s.out[sid]
		return sid != s.remoteSession && !gone
	})
}

func (s *CallSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
