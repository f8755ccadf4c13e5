// Package stream carries scroll sessions over WebSocket. Conn is the server
// side of one visitor's socket; Client dials a server and is used by the
// simulate command and the tests.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/pkg/streaming"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

var (
	// ErrClosed is returned when using a connection that has shut down.
	ErrClosed = errors.New("connection closed")
	// ErrSubscribed is returned when a second dispatcher subscribes.
	ErrSubscribed = errors.New("connection already has a subscriber")
)

// NewUpgrader returns an upgrader accepting the given origins. "*" accepts
// any origin; an empty list accepts only same-host requests.
func NewUpgrader(allowedOrigins []string) *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		if len(allowed) > 0 {
			return false
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Conn is a server-side WebSocket with a single write goroutine. Incoming
// envelopes are decoded on the read goroutine and handed to the subscribed
// dispatcher; handler errors are reported back to the client.
type Conn struct {
	id     string
	conn   *ws.Conn
	sendCh chan []byte
	flush  chan struct{}
	done   chan struct{}
	logger *slog.Logger

	mu         sync.Mutex
	closing    bool
	closed     bool
	subscriber *dispatcher.Dispatcher

	loops sync.WaitGroup
}

// Upgrade upgrades the HTTP request and starts the read and write loops.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *ws.Upgrader, logger *slog.Logger) (*Conn, error) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	c := &Conn{
		id:     id,
		conn:   raw,
		sendCh: make(chan []byte, sendChSize),
		flush:  make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With("conn", id, "remote", r.RemoteAddr),
	}

	c.loops.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Done is closed when the connection shuts down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Subscribe routes incoming messages to d until the returned func is called.
func (c *Conn) Subscribe(d *dispatcher.Dispatcher) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing {
		return nil, ErrClosed
	}
	if c.subscriber != nil {
		return nil, ErrSubscribed
	}
	c.subscriber = d

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.subscriber == d {
				c.subscriber = nil
			}
			c.mu.Unlock()
		})
	}, nil
}

// Send encodes payload under typ and queues it for the write loop. Messages
// are dropped when the client cannot keep up.
func (c *Conn) Send(typ string, payload any) error {
	env, err := streaming.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", typ, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing {
		return ErrClosed
	}
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("WebSocket send channel full, dropping message", "type", typ)
	}
	return nil
}

// Close writes the queued messages, sends a close frame, shuts the socket and
// waits for both loops.
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.closing && !c.closed {
		c.closing = true
		close(c.flush)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	err := c.shutdown()
	c.loops.Wait()
	return err
}

func (c *Conn) shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subscriber = nil
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return c.conn.Close()
}

// writeLoop drains sendCh and pings the client. It returns on error or
// shutdown; on Close it first writes whatever is still queued.
func (c *Conn) writeLoop() {
	defer c.loops.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.flush:
			for {
				select {
				case data := <-c.sendCh:
					if !c.write(data) {
						return
					}
				default:
					_ = c.shutdown()
					return
				}
			}
		case data := <-c.sendCh:
			if !c.write(data) {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				_ = c.shutdown()
				return
			}
		}
	}
}

// write sends one message and shuts the connection down on failure.
func (c *Conn) write(data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
		_ = c.shutdown()
		return false
	}
	if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
		c.logger.Warn("WebSocket write error", "error", err)
		_ = c.shutdown()
		return false
	}
	return true
}

// readLoop decodes envelopes and dispatches them to the subscriber.
func (c *Conn) readLoop() {
	defer c.loops.Done()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					c.logger.Warn("WebSocket read error", "error", err)
				} else {
					c.logger.Debug("WebSocket closed by client", "error", err)
				}
				_ = c.shutdown()
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.reject("", "malformed envelope")
			continue
		}
		c.route(env)
	}
}

func (c *Conn) route(env streaming.Envelope) {
	c.mu.Lock()
	d := c.subscriber
	c.mu.Unlock()

	if d == nil {
		c.logger.Debug("Message received without subscriber", "type", env.Type)
		return
	}
	if !d.HasHandler(env.Type) {
		c.reject(env.Type, "unknown message type")
		return
	}

	_, err := d.Dispatch(dispatcher.Event{
		Type:      env.Type,
		SessionID: c.id,
		Payload:   env.Payload,
	})
	if err != nil {
		c.reject(env.Type, err.Error())
	}
}

func (c *Conn) reject(typ, msg string) {
	if err := c.Send(streaming.TypeError, streaming.ErrorPayload{For: typ, Message: msg}); err != nil {
		c.logger.Debug("Failed to report rejected message", "type", typ, "error", err)
	}
}
