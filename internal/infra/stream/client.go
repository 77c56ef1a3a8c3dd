// File: internal/infra/stream/client.go
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
	"agentboard/internal/domain/ports/adapter"
	"agentboard/internal/infra/metrics"
)

const subscriberBuffer = 64

// Options configures one logical connection's reconnect and heartbeat
// behavior. Scope labels metrics ("resource" or "global").
type Options struct {
	Scope        string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Heartbeat    time.Duration
}

// Client owns one logical stream connection: the connect/reconnect/backoff/
// heartbeat state machine, and multicast fan-out of decoded messages to any
// number of subscribers. Multiple clients may coexist, each with its own
// isolated state machine.
type Client struct {
	transport adapter.StreamTransport
	opts      Options
	log       *zerolog.Logger

	mu        sync.Mutex
	state     model.ConnectionState
	attempt   int
	conn      adapter.StreamConn
	resource  string
	ctx       context.Context
	gen       int // bumped on Disconnect/Connect; stale goroutines check it and exit
	reconnect *time.Timer
	hbStop    chan struct{}
	terminal  bool

	subs      map[string]chan model.StreamMessage
	stateSubs map[string]chan model.ConnectionState
	errSubs   map[string]chan error
}

func NewClient(transport adapter.StreamTransport, opts Options, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "StreamClient").Str("scope", opts.Scope).Logger()
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	return &Client{
		transport: transport,
		opts:      opts,
		log:       &l,
		state:     model.StateDisconnected,
		subs:      make(map[string]chan model.StreamMessage),
		stateSubs: make(map[string]chan model.ConnectionState),
		errSubs:   make(map[string]chan error),
	}
}

// State reports the current connection state.
func (c *Client) State() model.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe attaches a message subscriber. Every subscriber receives every
// broadcast message exactly once, in arrival order. Delivery blocks once a
// subscriber's buffer fills, so a subscriber that stops draining must call
// the returned detach func — abandoning the channel without detaching
// eventually stalls delivery to everyone.
func (c *Client) Subscribe() (<-chan model.StreamMessage, func()) {
	ch := make(chan model.StreamMessage, subscriberBuffer)
	id := uuid.NewString()
	c.mu.Lock()
	c.subs[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// States attaches a connection-state subscriber.
func (c *Client) States() (<-chan model.ConnectionState, func()) {
	ch := make(chan model.ConnectionState, 8)
	id := uuid.NewString()
	c.mu.Lock()
	c.stateSubs[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// Errors attaches an error subscriber. Transport failures land here;
// decode failures never do.
func (c *Client) Errors() (<-chan error, func()) {
	ch := make(chan error, 8)
	id := uuid.NewString()
	c.mu.Lock()
	c.errSubs[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.errSubs, id)
		c.mu.Unlock()
	}
}

// Connect opens the stream for resourceID, replacing any previous
// connection. The attempt counter starts fresh.
func (c *Client) Connect(ctx context.Context, resourceID string) {
	c.mu.Lock()
	c.teardownLocked()
	c.resource = resourceID
	c.ctx = ctx
	c.attempt = 0
	c.terminal = false
	c.setStateLocked(model.StateConnecting)
	g := c.gen
	c.mu.Unlock()

	go c.dial(g)
}

// Send writes a payload frame to the open connection.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == model.StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return domain.ErrNotConnected
	}
	return conn.WriteFrame(payload)
}

// SendUserInput sends a user_input frame.
func (c *Client) SendUserInput(text string) error {
	return c.Send(EncodeUserInput(text))
}

// Disconnect tears the connection down and synchronously cancels any
// pending reconnect and heartbeat timers: once it returns, no timer fires
// for this client. Safe to call multiple times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	if c.state != model.StateDisconnected {
		c.setStateLocked(model.StateDisconnected)
	}
}

// ResetAndReconnect clears the attempt counter and retries immediately.
// This is the manual escape hatch after reconnect attempts are exhausted.
func (c *Client) ResetAndReconnect() {
	c.mu.Lock()
	if c.resource == "" || c.ctx == nil {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.attempt = 0
	c.terminal = false
	c.setStateLocked(model.StateConnecting)
	g := c.gen
	c.mu.Unlock()

	go c.dial(g)
}

// teardownLocked invalidates in-flight goroutines and stops timers.
// Callers hold c.mu.
func (c *Client) teardownLocked() {
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) dial(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx, resource := c.ctx, c.resource
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx, resource)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Str("resource", resource).Int("attempt", c.attempt).Msg("connect failed")
		c.emitErrorLocked(domain.NewSyncError(domain.KindConnectionFailed, "stream.connect", err))
		c.setStateLocked(model.StateDisconnected)
		c.scheduleReconnectLocked(gen)
		return
	}

	c.conn = conn
	c.attempt = 0
	c.setStateLocked(model.StateConnected)
	c.hbStop = make(chan struct{})
	c.log.Info().Str("resource", resource).Msg("connected")

	go c.readLoop(gen, conn)
	go c.heartbeatLoop(gen, c.hbStop)
}

// scheduleReconnectLocked applies the backoff policy:
// delay = min(initialDelay * 2^attempt, maxDelay). Exhausting MaxAttempts
// parks the client in StateError until ResetAndReconnect. Callers hold c.mu.
func (c *Client) scheduleReconnectLocked(gen int) {
	if c.attempt >= c.opts.MaxAttempts {
		c.terminal = true
		c.setStateLocked(model.StateError)
		c.emitErrorLocked(domain.NewSyncError(domain.KindConnectionLost, "stream.reconnect", domain.ErrRetriesExhausted))
		metrics.IncStreamTerminal(c.opts.Scope)
		c.log.Error().Str("resource", c.resource).Int("attempts", c.attempt).Msg("reconnect attempts exhausted")
		return
	}
	delay := c.opts.InitialDelay << c.attempt
	if delay > c.opts.MaxDelay || delay <= 0 {
		delay = c.opts.MaxDelay
	}
	c.attempt++
	metrics.IncStreamReconnect(c.opts.Scope)
	c.log.Debug().Dur("delay", delay).Int("attempt", c.attempt).Msg("scheduling reconnect")
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		c.setStateLocked(model.StateConnecting)
		c.mu.Unlock()
		c.dial(gen)
	})
}

func (c *Client) readLoop(gen int, conn adapter.StreamConn) {
	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			c.mu.Lock()
			if gen != c.gen {
				c.mu.Unlock()
				return
			}
			_ = conn.Close()
			c.conn = nil
			if c.hbStop != nil {
				close(c.hbStop)
				c.hbStop = nil
			}
			c.emitErrorLocked(domain.NewSyncError(domain.KindConnectionLost, "stream.read", err))
			c.setStateLocked(model.StateDisconnected)
			c.scheduleReconnectLocked(gen)
			c.mu.Unlock()
			return
		}

		msg := Decode(raw)
		metrics.IncStreamMessage(string(msg.Kind))
		switch msg.Kind {
		case model.MsgUnknown:
			// Malformed frames are logged and dropped; the connection is unaffected.
			c.log.Debug().Str("frame", truncate(raw, 200)).Msg("dropping unknown frame")
			continue
		case model.MsgConnected:
			// Transport-level connected/pong frames are consumed, not broadcast.
			continue
		}
		c.broadcast(gen, msg)
	}
}

// broadcast fans a message out to every subscriber. Called only from the
// single read loop, so per-stream arrival order is preserved at each
// subscriber.
func (c *Client) broadcast(gen int, msg model.StreamMessage) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	targets := make([]chan model.StreamMessage, 0, len(c.subs))
	for _, ch := range c.subs {
		targets = append(targets, ch)
	}
	c.mu.Unlock()
	for _, ch := range targets {
		ch <- msg
	}
}

func (c *Client) heartbeatLoop(gen int, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if gen != c.gen || c.conn == nil {
				c.mu.Unlock()
				return
			}
			conn := c.conn
			c.mu.Unlock()
			if err := conn.WriteFrame(EncodePing()); err != nil {
				c.log.Debug().Err(err).Msg("heartbeat write failed")
			}
		}
	}
}

func (c *Client) setStateLocked(s model.ConnectionState) {
	c.state = s
	for _, ch := range c.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (c *Client) emitErrorLocked(err error) {
	for _, ch := range c.errSubs {
		select {
		case ch <- err:
		default:
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
