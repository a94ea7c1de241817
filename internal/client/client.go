// Package client speaks the relay protocol from the endpoint side and feeds
// call frames into a call.Phone.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/call"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	sendBuffer = 256
	writeWait  = 5 * time.Second
)

var (
	ErrQueueFull = errors.New("client send queue full")
	ErrClosed    = errors.New("client closed")
)

// Client is one websocket session to the relay. Frames are read and
// dispatched on a single goroutine, so the attached Phone sees them in order.
type Client struct {
	conn     *websocket.Conn
	identity domain.Identity
	send     chan core.Frame
	done     chan struct{}
	doneOnce sync.Once

	mu        sync.RWMutex
	phone     *call.Phone
	session   core.SessionID
	onMessage []func(domain.Message)
	onEvent   []func(core.EventType, []byte)
	closed    bool
}

// Dial connects to the relay's signal endpoint, e.g. ws://host:8080/api/ws/signal.
func Dial(ctx context.Context, url string, identity domain.Identity) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &Client{
		conn:     conn,
		identity: identity,
		send:     make(chan core.Frame, sendBuffer),
		done:     make(chan struct{}),
	}, nil
}

func (c *Client) Identity() domain.Identity { return c.identity }

// Attach routes call frames, ringing, peer-gone and error acks to p.
func (c *Client) Attach(p *call.Phone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phone = p
}

func (c *Client) OnMessage(fn func(domain.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// OnEvent sees every inbound frame after it was dispatched.
func (c *Client) OnEvent(fn func(core.EventType, []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = append(c.onEvent, fn)
}

func (c *Client) Session() core.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) Register() error {
	return c.enqueue(core.RegisterRequest{Type: core.EventRegister, Identity: c.identity})
}

func (c *Client) JoinRoom(id string) error {
	return c.enqueue(core.JoinRoomRequest{Type: core.EventJoinRoom, RoomID: id})
}

func (c *Client) SendMessage(msg domain.Message) error {
	if msg.SenderID == "" {
		msg.SenderID = c.identity.ID
	}
	return c.enqueue(core.MessageEvent{Type: core.EventNewMessage, Message: msg})
}

func (c *Client) WhoAmI() error {
	return c.enqueue(core.Envelope{Type: core.EventWhoAmI})
}

// Send implements call.Signaler.
func (c *Client) Send(sig core.CallSignal) error {
	return c.enqueue(sig)
}

func (c *Client) enqueue(v any) error {
	frame, err := core.Encode(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run pumps the connection until ctx ends or the relay goes away. A call in
// progress is dropped when it returns. The connection is not redialed, so a
// second Run returns as soon as it notices the closed socket.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(c.readLoop)
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		return c.conn.Close()
	})
	err := g.Wait()

	c.mu.Lock()
	c.closed = true
	phone := c.phone
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
	if phone != nil {
		phone.Drop(domain.EndTransportLost)
	}
	log.Info().Str("module", "client").Str("identity", string(c.identity.ID)).Err(err).Msg("relay connection closed")

	if err == nil || ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

// Done is closed once Run returned.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}

func (c *Client) readLoop() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame from relay")
		return
	}

	c.mu.RLock()
	phone := c.phone
	c.mu.RUnlock()

	switch {
	case env.Type == core.EventRegistered:
		var evt core.RegisteredEvent
		if c.decode(data, &evt) {
			c.mu.Lock()
			c.session = evt.Session
			c.mu.Unlock()
			log.Info().Str("module", "client").Str("session", string(evt.Session)).Str("identity", string(evt.Identity.ID)).Msg("registered")
		}
	case env.Type == core.EventMessageReceived:
		var evt core.MessageEvent
		if c.decode(data, &evt) {
			c.mu.RLock()
			handlers := append([]func(domain.Message){}, c.onMessage...)
			c.mu.RUnlock()
			for _, fn := range handlers {
				fn(evt.Message)
			}
		}
	case env.Type == core.EventPeerGone:
		var evt core.PeerGoneEvent
		if c.decode(data, &evt) && phone != nil {
			phone.PeerGone(evt)
		}
	case env.Type == core.EventRinging:
		var evt core.RingingEvent
		if c.decode(data, &evt) && phone != nil {
			phone.HandleRinging(evt)
		}
	case env.Type == core.EventError:
		var evt core.ErrorEvent
		if c.decode(data, &evt) {
			log.Warn().Str("module", "client").Str("error", evt.Error).Str("ref", string(evt.Ref)).Str("to", string(evt.To)).Msg("relay error")
			if phone != nil {
				phone.HandleError(evt)
			}
		}
	case env.Type.IsCallSignal():
		var sig core.CallSignal
		if c.decode(data, &sig) && phone != nil {
			phone.HandleSignal(sig)
		}
	}

	c.mu.RLock()
	handlers := append([]func(core.EventType, []byte){}, c.onEvent...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(env.Type, data)
	}
}

func (c *Client) decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad payload from relay")
		return false
	}
	return true
}
