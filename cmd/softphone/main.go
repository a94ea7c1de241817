// Command softphone is a headless relay endpoint: it registers an identity,
// joins conversations, sends chat and places or answers calls with synthetic
// media.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"github.com/dkeye/Relay/internal/adapters/rtc"
	"github.com/dkeye/Relay/internal/call"
	"github.com/dkeye/Relay/internal/client"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	pflag.String("relay", "ws://localhost:8080/api/ws/signal", "relay signal endpoint")
	pflag.String("id", "", "identity to register")
	pflag.String("name", "", "display name")
	pflag.StringSlice("room", nil, "conversation rooms to join")
	pflag.String("say", "", "chat message to send after joining")
	pflag.StringSlice("members", nil, "conversation member ids for --say")
	pflag.String("dial", "", "identity to call")
	pflag.String("kind", string(domain.MediaAudio), "media kind: audio or video")
	pflag.Bool("auto-answer", false, "accept incoming calls")
	pflag.Duration("hangup-after", 0, "hang up an active call after this long (0 keeps it)")
	pflag.Parse()

	v := config.New()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	identity, err := domain.NewIdentity(v.GetString("id"), v.GetString("name"))
	if err != nil {
		log.Fatal().Err(err).Msg("--id is required")
	}

	recv := rtc.NewReceiver()
	recv.OnDrain(func(id string, d *rtc.Drain) {
		d.AddSink("log", rtc.NewSink(func(pkt *rtp.Packet) error {
			if pkt.SequenceNumber%500 == 0 {
				packets, bytes := d.Stats()
				log.Debug().Str("module", "softphone").Str("track", id).Uint64("packets", packets).Uint64("bytes", bytes).Msg("receiving")
			}
			return nil
		}))
	})
	factory, err := rtc.NewFactory(cfg.ICEServers, recv)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}

	c, err := client.Dial(ctx, v.GetString("relay"), *identity)
	if err != nil {
		log.Fatal().Err(err).Msg("connect relay")
	}

	phone := call.NewPhone(call.Options{
		Identity:         *identity,
		Signaler:         c,
		Media:            rtc.SyntheticSource{},
		NewTransport:     factory.New,
		RingTimeout:      cfg.RingTimeout,
		NegotiateTimeout: cfg.NegotiateTimeout,
	})
	defer phone.Close()
	factory.OnFailed = func() { phone.Drop(domain.EndTransportLost) }
	c.Attach(phone)

	hangupAfter := v.GetDuration("hangup-after")
	phone.OnPhase(func(s call.Snapshot) {
		if s.Phase == call.Active && hangupAfter > 0 {
			time.AfterFunc(hangupAfter, func() { _ = phone.Hangup() })
		}
	})
	if v.GetBool("auto-answer") {
		phone.OnIncoming(func(in call.IncomingCall) {
			log.Info().Str("module", "softphone").Str("from", string(in.From)).Str("kind", string(in.Kind)).Msg("answering")
			go func() { _ = phone.Accept() }()
		})
	}
	c.OnMessage(func(m domain.Message) {
		log.Info().Str("module", "softphone").Str("conversation", m.ConversationID).Str("from", string(m.SenderID)).Str("content", m.Content).Msg("message")
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	if err := start(ctx, c, phone, v.GetStringSlice("room"), v.GetString("say"), v.GetStringSlice("members"),
		domain.IdentityID(v.GetString("dial")), domain.MediaKind(v.GetString("kind"))); err != nil {
		log.Error().Err(err).Str("module", "softphone").Msg("startup")
		cancel()
	}

	if err := <-done; err != nil {
		log.Error().Err(err).Msg("relay connection")
		os.Exit(1)
	}
}

func start(ctx context.Context, c *client.Client, phone *call.Phone, rooms []string, say string, members []string, dial domain.IdentityID, kind domain.MediaKind) error {
	if err := c.Register(); err != nil {
		return err
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for c.Session() == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return client.ErrClosed
		case <-ticker.C:
		}
	}

	for _, room := range rooms {
		if err := c.JoinRoom(room); err != nil {
			return err
		}
	}
	if say != "" && len(rooms) > 0 {
		ids := lo.Map(members, func(m string, _ int) domain.IdentityID { return domain.IdentityID(m) })
		if err := c.SendMessage(domain.Message{ConversationID: rooms[0], Content: say, ConversationMemberIDs: ids}); err != nil {
			return err
		}
	}
	if dial != "" {
		if _, err := phone.Dial(dial, kind); err != nil {
			return err
		}
	}
	return nil
}
