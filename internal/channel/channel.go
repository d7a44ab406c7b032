// ABOUTME: Websocket connection lifecycle for the chat relay
// ABOUTME: Idempotent connect, register/join handshake, boolean send, no auto-reconnect

package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wayline/tripchat/internal/wire"
)

// State is the connection lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// ErrMissingIdentity is returned by Connect when the user or conversation id
// is empty; the handshake cannot be performed without both.
var ErrMissingIdentity = errors.New("channel: user and conversation ids required")

// Channel owns one realtime connection to the relay endpoint. All inbound
// frames are decoded and published through the broadcaster in arrival order.
// Lost connections are reported as events; redialing is the caller's job.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	events *Broadcaster
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	gen     int // connection generation, stale read pumps exit silently
	writeMu sync.Mutex
}

// New creates a channel for the given websocket URL. Pass nil logger for
// default.
func New(url string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: NewBroadcaster(logger),
		logger: logger.With("component", "channel"),
		state:  StateIdle,
	}
}

// Subscribe returns a stream of channel events. The subscription ends when
// ctx is cancelled.
func (c *Channel) Subscribe(ctx context.Context) (<-chan Event, string) {
	return c.events.Subscribe(ctx)
}

// State reports the current lifecycle phase.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is open.
func (c *Channel) Connected() bool {
	return c.State() == StateOpen
}

// Connect dials the relay and performs the register and join handshake.
// It is idempotent: an existing connection is torn down first. On dial
// failure a disconnected event carries the reason and the error is returned.
func (c *Channel) Connect(ctx context.Context, userID, conversationID string) error {
	if userID == "" || conversationID == "" {
		return ErrMissingIdentity
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.gen++
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateClosed
		}
		c.mu.Unlock()
		c.logger.Warn("dial failed", "url", c.url, "error", err)
		c.events.Publish(Event{Kind: EventDisconnected, Reason: err.Error()})
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		// A newer Connect superseded this dial.
		c.mu.Unlock()
		conn.Close()
		return errors.New("channel: connect superseded")
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	if err := c.writeJSON(conn, wire.Register(userID)); err != nil {
		c.teardown(gen, "register failed: "+err.Error())
		return err
	}
	if err := c.writeJSON(conn, wire.Join(userID, conversationID)); err != nil {
		c.teardown(gen, "join failed: "+err.Error())
		return err
	}

	c.logger.Info("connected", "conversation_id", conversationID)
	c.events.Publish(Event{Kind: EventConnected})

	go c.readPump(conn, gen)
	return nil
}

// Send writes a frame if the connection is open. It returns true only when
// the write was attempted on an open connection and succeeded. There is no
// queue and no retry; after a reconnect the caller re-sends what it needs.
func (c *Channel) Send(frame any) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return false
	}
	if err := c.writeJSON(conn, frame); err != nil {
		c.logger.Warn("write failed", "error", err)
		c.events.Publish(Event{Kind: EventError, Reason: err.Error()})
		return false
	}
	return true
}

// Disconnect closes the socket and clears state. Safe to call when already
// disconnected. No disconnected event is published for caller-initiated
// teardown; listeners are assumed to be detaching anyway.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.state = StateClosed
}

// Close tears down the connection and all subscriptions.
func (c *Channel) Close() {
	c.Disconnect()
	c.events.Close()
}

// teardown closes the socket after a handshake write failure and reports the
// reason as a disconnected event. The generation guard makes it a no-op when
// a newer Connect already owns the state; on the current generation it also
// ends the generation so a racing read pump exits silently instead of
// reporting the close a second time.
func (c *Channel) teardown(gen int, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.state = StateClosed
	c.mu.Unlock()

	c.logger.Warn("handshake failed", "reason", reason)
	c.events.Publish(Event{Kind: EventDisconnected, Reason: reason})
}

// readPump decodes inbound frames and publishes them until the connection
// dies. A pump from a superseded connection exits without publishing.
func (c *Channel) readPump(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := gen == c.gen
			if current {
				c.conn = nil
				c.state = StateClosed
			}
			c.mu.Unlock()
			if current {
				c.logger.Info("connection closed", "reason", err.Error())
				c.events.Publish(Event{Kind: EventDisconnected, Reason: err.Error()})
			}
			return
		}

		now := time.Now()
		if batch, ok := wire.DecodeHistory(raw, now); ok {
			c.events.Publish(Event{Kind: EventHistory, History: batch})
			continue
		}
		c.events.Publish(Event{Kind: EventMessage, Message: wire.Decode(raw, now)})
	}
}

// writeJSON serializes writes; gorilla connections allow one writer at a time.
func (c *Channel) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}
