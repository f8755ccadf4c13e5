package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/folio-labs/journey/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const recvChSize = 1024

// Client is the visitor side of a scroll session. It keeps a single write
// goroutine and buffers received envelopes until Next is called.
type Client struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	recvCh chan streaming.Envelope
	done   chan struct{}
	closed bool
	err    error

	logger *slog.Logger
	loops  sync.WaitGroup
}

// Dial connects to a session endpoint and starts the read and write loops.
func Dial(ctx context.Context, rawURL string, header http.Header, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, resp, err := ws.DefaultDialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &Client{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		recvCh: make(chan streaming.Envelope, recvChSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	c.loops.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Send encodes payload under typ and queues it for the write loop.
func (c *Client) Send(typ string, payload any) error {
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
	if c.closed {
		return ErrClosed
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		return fmt.Errorf("send channel full, dropping %s", typ)
	}
}

// Next returns the next received envelope. It fails once the connection is
// closed and every buffered envelope has been read.
func (c *Client) Next(ctx context.Context) (streaming.Envelope, error) {
	select {
	case env := <-c.recvCh:
		return env, nil
	default:
	}
	select {
	case env := <-c.recvCh:
		return env, nil
	case <-ctx.Done():
		return streaming.Envelope{}, ctx.Err()
	case <-c.done:
		select {
		case env := <-c.recvCh:
			return env, nil
		default:
		}
		return streaming.Envelope{}, c.closeErr()
	}
}

// WaitFor reads envelopes until one of type typ arrives, discarding the rest.
func (c *Client) WaitFor(ctx context.Context, typ string) (streaming.Envelope, error) {
	for {
		env, err := c.Next(ctx)
		if err != nil {
			return streaming.Envelope{}, fmt.Errorf("waiting for %q: %w", typ, err)
		}
		if env.Type == typ {
			return env, nil
		}
	}
}

// Close sends a close frame and shuts down both loops.
func (c *Client) Close() error {
	err := c.shutdown(nil)
	c.loops.Wait()
	return err
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Client) shutdown(cause error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.err = cause
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return c.conn.Close()
}

func (c *Client) writeLoop() {
	defer c.loops.Done()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				_ = c.shutdown(err)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				_ = c.shutdown(err)
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.loops.Done()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("WebSocket read ended", "error", err)
				_ = c.shutdown(err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Non-envelope message received", "raw", string(message))
			continue
		}

		select {
		case c.recvCh <- env:
		default:
			c.logger.Debug("Receive channel full, dropping", "type", env.Type)
		}
	}
}
