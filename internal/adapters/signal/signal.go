package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/duocall/internal/app"
	"github.com/dkeye/duocall/internal/config"
	"github.com/dkeye/duocall/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const writeWait = 10 * time.Second

type SignalWSController struct {
	Hub        *app.Hub
	Limiter    *RoomRateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
	SendQueue  int
}

func NewSignalWSController(hub *app.Hub, cfg config.ServerConfig) *SignalWSController {
	queue := cfg.SendQueue
	if queue <= 0 {
		queue = 32
	}
	return &SignalWSController{
		Hub:        hub,
		Limiter:    NewRoomRateLimiter(cfg.JoinLimit, cfg.JoinInterval),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendQueue:  queue,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := core.ConnID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("conn", string(id)).Str("client_token", c.GetString("client_token")).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendQueue),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Connect(id, conn, cancel)

	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
