package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sanskara/internal/domain"
	"sanskara/internal/observe"
	"sanskara/internal/ports"
)

var (
	// ErrNotConnected is returned by Send when the socket is not open.
	// Callers check connection state or handle the error; nothing is queued.
	ErrNotConnected = errors.New("websocket is not connected")

	// ErrAlreadyConnected is returned by Connect while a connection is live
	// or being established.
	ErrAlreadyConnected = errors.New("connection already active")
)

// Options controls connection identity and recovery behavior.
type Options struct {
	UserID       string
	SessionID    string
	Mode         string // live|test
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PingInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.Mode == "" {
		o.Mode = "live"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
}

// Client owns exactly one websocket at a time and drives it through the
// connection lifecycle: connecting, initializing, connected, reconnecting,
// failed, disconnected. Unexpected socket loss feeds a capped exponential
// backoff; an explicit Close is terminal.
type Client struct {
	baseURL string
	opts    Options
	dialer  ports.Dialer
	log     *zap.Logger

	mu             sync.Mutex
	state          domain.ConnectionState
	sock           ports.Socket
	gen            int // connection generation; read loops for older sockets are ignored
	sessionID      string
	attempt        int
	closed         bool
	agentReady     bool
	reconnectTimer *time.Timer
	pingStop       chan struct{}
	handlers       ports.ConnectionHandlers

	writeMu sync.Mutex
}

// New builds a client for the given websocket endpoint. A nil dialer selects
// the gorilla-backed default.
func New(baseURL string, opts Options, dialer ports.Dialer, log *zap.Logger) *Client {
	opts.applyDefaults()
	if dialer == nil {
		dialer = gorillaDialer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		opts:    opts,
		dialer:  dialer,
		log:     log,
		state:   domain.StateDisconnected,
	}
}

// Bind registers the handler set for this instance. Call before Connect.
func (c *Client) Bind(h ports.ConnectionHandlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the backend-issued session token, empty until assigned.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect opens the socket. On success the client is initializing and the
// heartbeat is running; the connected state follows the backend's readiness
// signal. A dial failure feeds the same recovery path as an unexpected close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.StateConnecting, domain.StateInitializing, domain.StateConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.closed = false
	c.setStateLocked(domain.StateConnecting)
	url := c.buildURLLocked()
	c.mu.Unlock()
	c.notifyState(domain.StateConnecting)

	sock, err := c.dialer.Dial(ctx, url)
	if err != nil {
		c.log.Warn("websocket dial failed", zap.Error(err))
		c.socketDown(-1)
		return fmt.Errorf("dial websocket: %w", err)
	}

	c.adopt(sock)
	return nil
}

// Reconnect resets the retry budget and connects again. It is the only way
// out of the failed state.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	c.attempt = 0
	if c.state == domain.StateFailed {
		c.state = domain.StateDisconnected
	}
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Send marshals and writes one frame. It fails immediately when the socket
// is not open; queueing during disconnects is deliberately not provided.
func (c *Client) Send(msg domain.Outbound) error {
	c.mu.Lock()
	sock := c.sock
	open := sock != nil && (c.state == domain.StateConnected || c.state == domain.StateInitializing)
	c.mu.Unlock()
	if !open {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode outbound frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := sock.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write outbound frame: %w", err)
	}
	observe.IncMessage("out", msg.Type)
	return nil
}

// Close tears the connection down and disables automatic recovery. The state
// stays disconnected until a new Connect call.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	c.gen++
	changed := c.state != domain.StateDisconnected
	c.setStateLocked(domain.StateDisconnected)
	c.mu.Unlock()

	if changed {
		c.notifyState(domain.StateDisconnected)
	}
}

// adopt installs a freshly opened socket: resets the retry budget, starts the
// heartbeat, and spawns the read loop.
func (c *Client) adopt(sock ports.Socket) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sock.Close()
		return
	}
	c.sock = sock
	c.gen++
	gen := c.gen
	c.attempt = 0
	c.agentReady = false
	c.setStateLocked(domain.StateInitializing)
	c.startHeartbeatLocked(sock)
	c.mu.Unlock()

	c.notifyState(domain.StateInitializing)
	go c.readLoop(sock, gen)
}

func (c *Client) readLoop(sock ports.Socket, gen int) {
	for {
		_, payload, err := sock.ReadMessage()
		if err != nil {
			c.socketDown(gen)
			return
		}

		var msg domain.Inbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Warn("failed to parse inbound frame", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch intercepts lifecycle tags and forwards everything else unopened.
func (c *Client) dispatch(msg domain.Inbound) {
	observe.IncMessage("in", msg.Type)

	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()

	switch msg.Type {
	case domain.TypeSessionID:
		// Session identity is immutable once assigned; later frames with the
		// same tag are expected to repeat the same value.
		c.mu.Lock()
		if c.sessionID == "" {
			c.sessionID = msg.Data
		}
		c.mu.Unlock()
		if h.SessionID != nil {
			h.SessionID(msg.Data)
		}

	case domain.TypeAgentReady, domain.TypeLegacyReady:
		c.mu.Lock()
		first := !c.agentReady
		c.agentReady = true
		if first {
			c.setStateLocked(domain.StateConnected)
		}
		c.mu.Unlock()
		if first {
			c.notifyState(domain.StateConnected)
			if h.AgentReady != nil {
				h.AgentReady()
			}
		}

	case domain.TypeTurnComplete:
		if h.TurnComplete != nil {
			h.TurnComplete()
		}

	case domain.TypeInterrupted:
		if h.Interrupted != nil {
			h.Interrupted()
		}

	case domain.TypeError:
		if h.ErrorPayload != nil {
			h.ErrorPayload(msg.Data)
		}

	default:
		if h.Message != nil {
			h.Message(msg)
		}
	}
}

// socketDown is the single recovery path for unexpected closes, transport
// errors, and dial failures (gen < 0). It stops the heartbeat and either
// schedules a retry or lands in failed once the budget is spent.
func (c *Client) socketDown(gen int) {
	c.mu.Lock()
	if gen >= 0 && gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	c.gen++

	if c.closed || c.state == domain.StateFailed || c.state == domain.StateDisconnected {
		c.mu.Unlock()
		return
	}

	if c.attempt >= c.opts.MaxAttempts {
		c.setStateLocked(domain.StateFailed)
		c.mu.Unlock()
		c.log.Warn("reconnection budget exhausted",
			zap.Int("attempts", c.opts.MaxAttempts))
		c.notifyState(domain.StateFailed)
		return
	}

	delay := backoffDelay(c.attempt, c.opts.BaseDelay, c.opts.MaxDelay)
	c.attempt++
	attempt := c.attempt
	c.setStateLocked(domain.StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	observe.IncReconnect()
	c.log.Info("scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	c.notifyState(domain.StateReconnecting)
}

func (c *Client) redial() {
	c.mu.Lock()
	if c.closed || c.state != domain.StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(domain.StateConnecting)
	url := c.buildURLLocked()
	c.mu.Unlock()
	c.notifyState(domain.StateConnecting)

	sock, err := c.dialer.Dial(context.Background(), url)
	if err != nil {
		c.log.Warn("reconnect dial failed", zap.Error(err))
		c.socketDown(-1)
		return
	}
	c.adopt(sock)
}

func (c *Client) startHeartbeatLocked(sock ports.Socket) {
	stop := make(chan struct{})
	c.pingStop = stop
	interval := c.opts.PingInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ping, _ := json.Marshal(domain.Outbound{Type: domain.TypePing})
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				err := sock.WriteMessage(websocket.TextMessage, ping)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
				observe.IncHeartbeat()
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopHeartbeatLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

func (c *Client) setStateLocked(state domain.ConnectionState) {
	c.state = state
	observe.IncState(string(state))
}

func (c *Client) notifyState(state domain.ConnectionState) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()
	if h.StateChanged != nil {
		h.StateChanged(state)
	}
}

// backoffDelay is min(base * 2^attempt, cap).
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
