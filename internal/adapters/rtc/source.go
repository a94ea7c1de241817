package rtc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/call"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	mtu          = 1200
	audioFrame   = 20 * time.Millisecond
	videoFrame   = time.Second / 30
	opusRate     = 48000
	videoRate    = 90000
	videoPayload = 800
)

// Opus TOC byte for a 20ms silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource stands in for microphone and camera capture: it paces
// silence Opus frames and filler VP8 frames into static RTP tracks.
type SyntheticSource struct{}

func (SyntheticSource) Acquire(ctx context.Context, kind domain.MediaKind) (call.LocalMedia, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidMediaKind
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream := "relay-" + uuid.NewString()
	audio, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusRate, Channels: 2}, "audio", stream)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m := &syntheticMedia{tracks: []webrtc.TrackLocal{audio}, cancel: cancel}
	m.pace(runCtx, audio, rtp.NewPacketizer(mtu, 111, rand.Uint32(), &codecs.OpusPayloader{}, rtp.NewRandomSequencer(), opusRate),
		audioFrame, opusRate/50, func() []byte { return opusSilence })

	if kind.WantsVideo() {
		video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoRate}, "video", stream)
		if err != nil {
			m.Stop()
			return nil, fmt.Errorf("video track: %w", err)
		}
		m.tracks = append(m.tracks, video)
		frame := make([]byte, videoPayload)
		m.pace(runCtx, video, rtp.NewPacketizer(mtu, 96, rand.Uint32(), &codecs.VP8Payloader{}, rtp.NewRandomSequencer(), videoRate),
			videoFrame, videoRate/30, func() []byte { return frame })
	}
	log.Info().Str("module", "rtc.source").Str("kind", string(kind)).Int("tracks", len(m.tracks)).Msg("capture started")
	return m, nil
}

type syntheticMedia struct {
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (m *syntheticMedia) Tracks() []webrtc.TrackLocal { return m.tracks }

func (m *syntheticMedia) Stop() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
		log.Info().Str("module", "rtc.source").Int("tracks", len(m.tracks)).Msg("capture stopped")
	})
}

// pace writes one packetized frame per tick. Writes before the track is
// bound to a peer connection are dropped by pion.
func (m *syntheticMedia) pace(ctx context.Context, track *webrtc.TrackLocalStaticRTP, p rtp.Packetizer, every time.Duration, samples uint32, frame func() []byte) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, pkt := range p.Packetize(frame(), samples) {
					if err := track.WriteRTP(pkt); err != nil {
						log.Debug().Err(err).Str("module", "rtc.source").Str("track", track.ID()).Msg("write rtp")
						return
					}
				}
			}
		}
	}()
}
