package rtc

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SinkState int32

const (
	SinkOk SinkState = iota
	SinkMuted
	SinkDelete
)

// Sink receives every packet of one remote track while it is Ok.
type Sink struct {
	write func(*rtp.Packet) error
	state atomic.Int32 // Zero by default (SinkOk)
}

func NewSink(write func(*rtp.Packet) error) *Sink {
	return &Sink{write: write}
}

func (s *Sink) State() SinkState { return SinkState(s.state.Load()) }
func (s *Sink) MarkOk()          { s.state.Store(int32(SinkOk)) }
func (s *Sink) MarkMuted()       { s.state.Store(int32(SinkMuted)) }
func (s *Sink) MarkDelete()      { s.state.Store(int32(SinkDelete)) }

// PacketReader is satisfied by *webrtc.TrackRemote.
type PacketReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Drain keeps one remote track flowing: it reads every RTP packet, counts it
// and hands it to the attached sinks.
type Drain struct {
	src PacketReader

	mu    sync.RWMutex
	sinks map[string]*Sink

	packets atomic.Uint64
	bytes   atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

func (d *Drain) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("drain ctx done, marking all sinks for delete")
			d.markAllDelete()
			return
		default:
		}
		pkt, _, err := d.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Uint64("packets", d.packets.Load()).Msg("drain read stopped")
			d.markAllDelete()
			return
		}
		d.packets.Add(1)
		d.bytes.Add(uint64(len(pkt.Payload)))
		d.forward(pkt, logger)
	}
}

func (d *Drain) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	d.mu.RLock()
	if len(d.sinks) == 0 {
		d.mu.RUnlock()
		return
	}
	snapshot := maps.Clone(d.sinks)
	d.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, s := range snapshot {
		switch s.State() {
		case SinkDelete:
			dirty = append(dirty, name)
		case SinkMuted:
		case SinkOk:
			if err := s.write(pkt); err != nil {
				logger.Warn().Err(err).Str("sink", name).Msg("sink write error, marking for delete")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	if len(dirty) > 0 {
		d.mu.Lock()
		for _, name := range dirty {
			delete(d.sinks, name)
		}
		d.mu.Unlock()
	}
}

func (d *Drain) markAllDelete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sinks {
		s.MarkDelete()
	}
}

func (d *Drain) AddSink(name string, s *Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[name] = s
}

// Stats reports packets and payload bytes read so far.
func (d *Drain) Stats() (packets, bytes uint64) {
	return d.packets.Load(), d.bytes.Load()
}

// Receiver owns the drains of every remote track of the process.
type Receiver struct {
	mu     sync.RWMutex
	drains map[string]*Drain
	onNew  func(id string, d *Drain)
}

func NewReceiver() *Receiver {
	return &Receiver{drains: make(map[string]*Drain)}
}

// OnDrain registers a callback for each newly started drain, typically to
// attach sinks.
func (r *Receiver) OnDrain(fn func(id string, d *Drain)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onNew = fn
}

// Start begins draining src under id, replacing an older drain with the same id.
func (r *Receiver) Start(ctx context.Context, id string, src PacketReader) *Drain {
	logger := log.With().Str("module", "rtc.receiver").Str("track", id).Logger()

	drainCtx, cancel := context.WithCancel(ctx)
	d := &Drain{src: src, sinks: make(map[string]*Sink), cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if old, ok := r.drains[id]; ok {
		logger.Info().Msg("replacing existing drain")
		old.markAllDelete()
		old.cancel()
	}
	r.drains[id] = d
	onNew := r.onNew
	r.mu.Unlock()

	if onNew != nil {
		onNew(id, d)
	}
	logger.Info().Msg("starting drain loop")
	go d.loop(drainCtx, &logger)
	return d
}

func (r *Receiver) Get(id string) (*Drain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drains[id]
	return d, ok
}

// Stop cancels the drain; its loop exits once the pending read returns.
func (r *Receiver) Stop(id string) {
	r.mu.Lock()
	d, ok := r.drains[id]
	delete(r.drains, id)
	r.mu.Unlock()
	if ok {
		d.markAllDelete()
		d.cancel()
	}
}
