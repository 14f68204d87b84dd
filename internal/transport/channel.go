// Package transport owns the persistent channel to the server: dialing
// with the auth token, frame I/O, and automatic reconnection while a
// token is held. All other components reach the wire only through
// Channel's Send and OnFrame contract.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/wire"
	"github.com/gorilla/websocket"
)

// Status of the persistent channel as observed by collaborators.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusClosed       Status = "closed"
)

var (
	// ErrNoToken is returned by Connect when no auth token is held.
	// Connecting without a token is a no-op, not a retryable failure.
	ErrNoToken = errors.New("no auth token")

	// ErrNotConnected is returned by Send when the channel is not open.
	// The check is a synchronous precondition; nothing is queued.
	ErrNotConnected = errors.New("channel not open")
)

const dialTimeout = 10 * time.Second

// FrameHandler consumes inbound frames in arrival order.
type FrameHandler func(wire.Frame)

// StatusHandler observes connectivity changes.
type StatusHandler func(Status)

// Options configures a Channel.
type Options struct {
	// URL is the websocket endpoint; the token is appended as a query
	// parameter at connect time.
	URL string

	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	ReconnectDelay time.Duration
}

// Channel is the single connection owned by the session. One read pump
// goroutine feeds the registered frame handler; writes are serialized
// under a mutex. Reconnection runs through an explicit RetryPolicy.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer
	retry  *RetryPolicy

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	token  string
	// gen distinguishes pump callbacks of a previous connection from
	// the current one after a reconnect.
	gen int

	onFrame  FrameHandler
	onStatus StatusHandler
}

// NewChannel builds a disconnected channel; Connect opens it.
func NewChannel(opts Options) *Channel {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Channel{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		retry:  NewRetryPolicy(opts.ReconnectDelay),
		status: StatusDisconnected,
	}
}

// OnFrame registers the exclusive consumer of inbound frames. It must be
// set before Connect.
func (c *Channel) OnFrame(h FrameHandler) {
	c.mu.Lock()
	c.onFrame = h
	c.mu.Unlock()
}

// OnStatus registers the connectivity observer.
func (c *Channel) OnStatus(h StatusHandler) {
	c.mu.Lock()
	c.onStatus = h
	c.mu.Unlock()
}

// SetToken stores the auth credential used for subsequent connects.
func (c *Channel) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Status returns the current connectivity state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens the channel, authenticating with the stored token as a
// query parameter. Without a token it fails immediately with ErrNoToken
// and does not attempt to connect. A failed dial schedules a retry while
// the token is still held.
func (c *Channel) Connect(ctx context.Context) error {
	defer logger.DeferLogDuration("transport.Connect", time.Now())()

	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrNoToken
	}
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.status = StatusConnecting
	notify := c.onStatus
	c.mu.Unlock()
	emit(notify, StatusConnecting)

	endpoint := c.opts.URL + "?token=" + url.QueryEscape(token)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		tokenHeld := c.token != ""
		notify = c.onStatus
		c.mu.Unlock()
		emit(notify, StatusDisconnected)
		if tokenHeld {
			c.scheduleReconnect()
		}
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	if c.token == "" {
		// Disconnected while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return ErrNoToken
	}
	c.conn = conn
	c.status = StatusOpen
	c.gen++
	gen := c.gen
	notify = c.onStatus
	c.mu.Unlock()
	emit(notify, StatusOpen)

	go c.readPump(conn, gen)
	go c.pingLoop(conn, gen)
	logger.Infof("channel open url=%s", c.opts.URL)
	return nil
}

// Send serializes and transmits one frame. It fails with ErrNotConnected
// when the channel is not open; a mid-write failure tears the connection
// down and lets the reconnect policy take over.
func (c *Channel) Send(f wire.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	if c.status != StatusOpen || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	gen := c.gen
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("set write deadline: %w", err)
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		c.handleClosure(gen, err)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Disconnect closes the channel, clears the token and cancels any pending
// reconnect. Idempotent.
func (c *Channel) Disconnect() {
	c.retry.Cancel()

	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.token = ""
	conn := c.conn
	c.conn = nil
	c.status = StatusClosed
	c.gen++
	notify := c.onStatus
	c.mu.Unlock()

	if conn != nil {
		if err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteTimeout)); err != nil {
			logger.Debugf("channel close message: %v", err)
		}
		conn.Close()
	}
	emit(notify, StatusClosed)
	logger.Info("channel closed")
}

// readPump reads frames until the connection errors out, dispatching each
// decoded frame in arrival order. Malformed frames are logged and dropped.
func (c *Channel) readPump(conn *websocket.Conn, gen int) {
	conn.SetReadLimit(c.opts.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout)); err != nil {
		logger.Errorf("channel set read deadline: %v", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("channel read: %v", err)
			}
			c.handleClosure(gen, err)
			return
		}

		frame, err := wire.Decode(raw)
		if err != nil {
			logger.Errorf("channel decode: %v", err)
			continue
		}

		c.mu.Lock()
		handler := c.onFrame
		c.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	}
}

// pingLoop keeps the connection alive; the pong handler in readPump
// extends the read deadline.
func (c *Channel) pingLoop(conn *websocket.Conn, gen int) {
	period := c.opts.PongTimeout * 9 / 10
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := gen != c.gen || c.conn != conn
		c.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return
		}
	}
}

// handleClosure reacts to an unexpected connection loss: if the closure
// belongs to the current connection and a token is still held, a single
// reconnect is scheduled after the policy delay.
func (c *Channel) handleClosure(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.status == StatusClosed {
		// A newer connection or an explicit disconnect already took over.
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.status = StatusDisconnected
	tokenHeld := c.token != ""
	notify := c.onStatus
	c.mu.Unlock()

	emit(notify, StatusDisconnected)
	logger.Errorf("channel lost: %v", cause)
	if tokenHeld {
		c.scheduleReconnect()
	}
}

func (c *Channel) scheduleReconnect() {
	c.retry.Schedule(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if err := c.Connect(ctx); err != nil && !errors.Is(err, ErrNoToken) {
			logger.Errorf("channel reconnect: %v", err)
		}
	})
}

func emit(h StatusHandler, s Status) {
	if h != nil {
		h(s)
	}
}
