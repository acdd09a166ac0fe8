// Package stream provides the WebSocket plumbing for streaming sources:
// a reconnecting client with heartbeat and send-side rate limiting, and a
// subscription adapter that speaks each vendor's framing through a Dialect.
package stream

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State is the connection lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

const (
	defaultPingInterval      = 30 * time.Second
	defaultPongTimeout       = 60 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultMaxReconnects     = 10
	writeWait                = 10 * time.Second
)

// Handlers receives connection events. OnMessage runs on the read loop
// goroutine; slow consumers should hand off. OnOpen's reconnected flag
// distinguishes the first connect from recoveries.
type Handlers struct {
	OnMessage func(data []byte)
	OnOpen    func(reconnected bool)
	OnError   func(err error)
	OnClose   func()
}

// WSOptions configures a WSClient.
type WSOptions struct {
	URL      string
	Handlers Handlers

	PingInterval         time.Duration
	PongTimeout          time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int

	// DisableReconnect pins the client to a single connection: a dropped
	// link closes the client instead of entering the reconnect loop.
	DisableReconnect bool

	// SendLimit throttles outbound frames (subscribe/unsubscribe bursts).
	// nil means unlimited.
	SendLimit *rate.Limiter
}

// WSClient is a reconnecting WebSocket connection. Reconnection uses a
// fixed interval up to MaxReconnectAttempts; after exhaustion the client
// stays closed and surfaces a terminal error through OnError.
type WSClient struct {
	opts WSOptions

	state atomic.Int32

	mu     sync.Mutex // guards conn and reconnect bookkeeping
	conn   *websocket.Conn
	closed chan struct{}

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewWSClient creates a client in StateIdle; nothing happens until Connect.
func NewWSClient(opts WSOptions) *WSClient {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnects
	}
	return &WSClient{opts: opts, closed: make(chan struct{})}
}

// State returns the current lifecycle state.
func (c *WSClient) State() State { return State(c.state.Load()) }

// Connect dials and starts the read and heartbeat loops.
func (c *WSClient) Connect() error {
	return c.connect(false)
}

func (c *WSClient) connect(reconnected bool) error {
	c.mu.Lock()
	// A Close that raced in (e.g. while a reconnect attempt slept) must
	// win; dialing past it would reopen the socket with nobody left to
	// close it.
	select {
	case <-c.closed:
		c.mu.Unlock()
		return fmt.Errorf("stream: client closed")
	default:
	}
	if State(c.state.Load()) == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.state.Store(int32(StateConnecting))

	conn, _, err := websocket.DefaultDialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.state.Store(int32(StateIdle))
		c.mu.Unlock()
		return fmt.Errorf("stream: dial %s: %w", c.opts.URL, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	c.conn = conn
	c.state.Store(int32(StateOpen))
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pingLoop(conn)

	if c.opts.Handlers.OnOpen != nil {
		c.opts.Handlers.OnOpen(reconnected)
	}
	return nil
}

// Send marshals v as JSON and writes it, honoring the send rate limit.
func (c *WSClient) Send(v any) error {
	if c.State() != StateOpen {
		return fmt.Errorf("stream: send in state %s", c.State())
	}
	if c.opts.SendLimit != nil {
		r := c.opts.SendLimit.Reserve()
		if !r.OK() {
			return fmt.Errorf("stream: send rate limiter rejected frame")
		}
		select {
		case <-time.After(r.Delay()):
		case <-c.closed:
			r.Cancel()
			return fmt.Errorf("stream: client closed")
		}
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream: no connection")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// Close shuts the connection down for good; no reconnect follows.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if State(c.state.Load()) == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state.Store(int32(StateClosing))
	conn := c.conn
	c.conn = nil
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	c.wg.Wait()
	c.state.Store(int32(StateClosed))

	if c.opts.Handlers.OnClose != nil {
		c.opts.Handlers.OnClose()
	}
	return err
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosing || c.State() == StateClosed {
				return
			}
			if c.opts.Handlers.OnError != nil {
				c.opts.Handlers.OnError(fmt.Errorf("stream: read: %w", err))
			}
			go c.reconnect(conn)
			return
		}
		if c.opts.Handlers.OnMessage != nil {
			c.opts.Handlers.OnMessage(data)
		}
	}
}

func (c *WSClient) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				// Read loop will observe the broken connection and drive
				// the reconnect; the ping loop just exits.
				_ = conn.Close()
				return
			}
		}
	}
}

// reconnect replaces the dead connection, retrying at a fixed interval up
// to the attempt cap. Only the goroutine owning the dead conn runs this.
func (c *WSClient) reconnect(dead *websocket.Conn) {
	c.mu.Lock()
	if c.conn != dead || State(c.state.Load()) != StateOpen {
		c.mu.Unlock()
		return
	}
	if c.opts.DisableReconnect {
		c.state.Store(int32(StateClosed))
		c.conn = nil
		c.mu.Unlock()
		_ = dead.Close()
		if c.opts.Handlers.OnClose != nil {
			c.opts.Handlers.OnClose()
		}
		return
	}
	c.state.Store(int32(StateReconnecting))
	c.conn = nil
	c.mu.Unlock()
	_ = dead.Close()

	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.closed:
			return
		case <-time.After(c.opts.ReconnectInterval):
		}

		log.Printf("[stream] reconnecting to %s (attempt %d/%d)",
			c.opts.URL, attempt, c.opts.MaxReconnectAttempts)
		// connect() requires a non-open state; StateReconnecting passes.
		if err := c.connect(true); err == nil {
			return
		} else if c.opts.Handlers.OnError != nil {
			c.opts.Handlers.OnError(err)
		}
		c.state.Store(int32(StateReconnecting))
	}

	c.state.Store(int32(StateClosed))
	if c.opts.Handlers.OnError != nil {
		c.opts.Handlers.OnError(fmt.Errorf("stream: %s unreachable after %d attempts",
			c.opts.URL, c.opts.MaxReconnectAttempts))
	}
	if c.opts.Handlers.OnClose != nil {
		c.opts.Handlers.OnClose()
	}
}
