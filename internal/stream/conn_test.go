package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/folio-labs/journey/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// pair starts a server that upgrades one request and returns both ends.
func pair(t *testing.T) (*Conn, *Client) {
	t.Helper()
	conns := make(chan *Conn, 1)
	upgrader := NewUpgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, upgrader, quiet)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, wsURL(srv), nil, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case c := <-conns:
		t.Cleanup(func() { _ = c.Close() })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive connection")
		return nil, nil
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin header", []string{"https://me.dev"}, "", "api.me.dev", true},
		{"wildcard", []string{"*"}, "https://evil.example", "api.me.dev", true},
		{"listed", []string{"https://me.dev/"}, "https://me.dev", "api.me.dev", true},
		{"not listed", []string{"https://me.dev"}, "https://evil.example", "api.me.dev", false},
		{"same host by default", nil, "http://localhost:8080", "localhost:8080", true},
		{"cross host by default", nil, "http://other:8080", "localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(r))
		})
	}
}

func TestConn_SendReachesClient(t *testing.T) {
	conn, client := pair(t)

	require.NoError(t, conn.Send(streaming.TypeFrame, core.Frame{Seq: 7, Stepped: 0.25}))

	env, err := client.WaitFor(waitCtx(t), streaming.TypeFrame)
	require.NoError(t, err)

	var f core.Frame
	require.NoError(t, json.Unmarshal(env.Payload, &f))
	assert.Equal(t, uint64(7), f.Seq)
	assert.Equal(t, 0.25, f.Stepped)
}

func TestConn_RoutesToSubscriber(t *testing.T) {
	conn, client := pair(t)

	var (
		mu     sync.Mutex
		events []dispatcher.Event
	)
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	d.Register(streaming.TypeScroll, func(e dispatcher.Event) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil, nil
	})

	unsubscribe, err := conn.Subscribe(d)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, client.Send(streaming.TypeScroll, streaming.ScrollPayload{Fraction: 0.4}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, conn.ID(), events[0].SessionID)
	var p streaming.ScrollPayload
	require.NoError(t, events[0].Decode(&p))
	assert.Equal(t, 0.4, p.Fraction)
}

func TestConn_RejectsUnknownAndFailedMessages(t *testing.T) {
	conn, client := pair(t)

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	d.Register(streaming.TypeResize, func(dispatcher.Event) (any, error) {
		return nil, errors.New("resize refused")
	})
	unsubscribe, err := conn.Subscribe(d)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, client.Send("zoom", nil))
	env, err := client.WaitFor(waitCtx(t), streaming.TypeError)
	require.NoError(t, err)
	var ep streaming.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, "zoom", ep.For)
	assert.Equal(t, "unknown message type", ep.Message)

	require.NoError(t, client.Send(streaming.TypeResize, streaming.ResizePayload{Mobile: true}))
	env, err = client.WaitFor(waitCtx(t), streaming.TypeError)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, streaming.TypeResize, ep.For)
	assert.Equal(t, "resize refused", ep.Message)
}

func TestConn_SingleSubscriber(t *testing.T) {
	conn, _ := pair(t)

	d1, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	d2, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)

	unsubscribe, err := conn.Subscribe(d1)
	require.NoError(t, err)

	_, err = conn.Subscribe(d2)
	assert.ErrorIs(t, err, ErrSubscribed)

	unsubscribe()
	unsubscribe()

	again, err := conn.Subscribe(d2)
	require.NoError(t, err)
	again()
}

func TestConn_ClientCloseEndsConn(t *testing.T) {
	conn, client := pair(t)

	require.NoError(t, client.Close())

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("conn did not notice client close")
	}

	assert.ErrorIs(t, conn.Send(streaming.TypeFrame, core.Frame{}), ErrClosed)
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	_, err = conn.Subscribe(d)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConn_ServerCloseEndsClient(t *testing.T) {
	conn, client := pair(t)

	require.NoError(t, conn.Send(streaming.TypeBye, streaming.ByePayload{Reason: "closed"}))
	env, err := client.WaitFor(waitCtx(t), streaming.TypeBye)
	require.NoError(t, err)
	assert.Equal(t, streaming.TypeBye, env.Type)

	require.NoError(t, conn.Close())
	_, err = client.Next(waitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, client.Send(streaming.TypeScroll, streaming.ScrollPayload{}), ErrClosed)
}
