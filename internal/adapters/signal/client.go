package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/duocall/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	clientPongWait   = 60 * time.Second
	clientPingPeriod = (clientPongWait * 9) / 10
	maxMessageSize   = 64 * 1024
)

var _ core.RelayChannel = (*Client)(nil)

// Client is the peer side of the relay. It implements core.RelayChannel and
// hands every received envelope to the handler, one at a time, in order.
type Client struct {
	conn    *websocket.Conn
	handler func(core.Envelope)
	logger  zerolog.Logger

	outgoing  chan core.Envelope
	done      chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay at url. handler must be set before any message arrives.
func Dial(ctx context.Context, url string, handler func(core.Envelope)) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", core.ErrTransportUnavailable, url, err)
	}
	c := &Client{
		conn:     conn,
		handler:  handler,
		logger:   log.With().Str("module", "signal.client").Str("url", url).Logger(),
		outgoing: make(chan core.Envelope, 16),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	})

	go c.readPump()
	go c.writePump()
	c.logger.Info().Msg("connected")
	return c, nil
}

// Send queues env for the relay. It fails with core.ErrTransportUnavailable once the client is closed.
func (c *Client) Send(ctx context.Context, env core.Envelope) error {
	select {
	case <-c.closed:
		return core.ErrTransportUnavailable
	default:
	}
	select {
	case c.outgoing <- env:
		return nil
	case <-c.closed:
		return core.ErrTransportUnavailable
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", core.ErrTransportUnavailable, ctx.Err())
	}
}

// Done is closed when the connection to the relay is gone.
func (c *Client) Done() <-chan struct{} { return c.closed }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		var env core.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		if env.Type == core.TypePong {
			continue
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		close(c.closed)
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Warn().Err(err).Str("type", string(env.Type)).Msg("write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Warn().Err(err).Msg("ping error")
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			c.logger.Info().Msg("closed")
			return
		}
	}
}

// flush writes whatever is still queued, so a final leave-room reaches the relay.
func (c *Client) flush() {
	for {
		select {
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		default:
			return
		}
	}
}
