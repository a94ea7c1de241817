package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	// SendQueue bounds the per-session outbound queue; 0 leaves it unbounded.
	SendQueue int
	Limiter   *DialRateLimiter
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	validate *validator.Validate
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.PongWait <= opts.PingPeriod {
		opts.PongWait = opts.PingPeriod * 10 / 9
	}
	return &SignalWSController{
		Orch:     o,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WsSignalConn queues frames for the write pump. Enqueueing never blocks.
type WsSignalConn struct {
	conn  *websocket.Conn
	limit int
	wake  chan struct{}

	mu     sync.Mutex
	queue  []core.Frame
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, limit int) *WsSignalConn {
	return &WsSignalConn{conn: ws, limit: limit, wake: make(chan struct{}, 1)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.limit > 0 && len(c.queue) >= c.limit {
		c.mu.Unlock()
		return ErrBackpressure
	}
	c.queue = append(c.queue, f)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// take hands the queued frames to the writer in enqueue order.
func (c *WsSignalConn) take() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.queue
	c.queue = nil
	return batch
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs one session until the socket
// closes or the session is kicked.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	device := c.GetString("client_token")
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("device", device).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendQueue)
	sess := core.NewMemberSession(sid, domain.NewMember(device), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
