package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}

	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("scroll", func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{Type: "scroll", SessionID: "s1", Payload: json.RawMessage(`{"fraction":0.5}`)})

	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, "s1", got.SessionID)
	assert.False(t, got.Timestamp.IsZero(), "timestamp is filled in")
}

func TestDispatcher_UnknownType(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Type: "teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
	assert.False(t, d.HasHandler("teleport"))
}

func TestEvent_Decode(t *testing.T) {
	var v struct {
		Fraction float64 `json:"fraction"`
	}

	err := Event{Type: "scroll", Payload: json.RawMessage(`{"fraction":0.25}`)}.Decode(&v)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v.Fraction)

	assert.Error(t, Event{Type: "scroll"}.Decode(&v))
	assert.Error(t, Event{Type: "scroll", Payload: json.RawMessage(`{nope`)}.Decode(&v))
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("scroll", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Type: "scroll"})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}

	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("scroll", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))
	defer close(block)

	_, err := d.Dispatch(Event{Type: "scroll"}) // picked up by the worker
	require.NoError(t, err)
	<-started
	_, err = d.Dispatch(Event{Type: "scroll"}) // queued
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Type: "scroll"}) // queued
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Type: "scroll"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("resize", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Type: "resize"})
	<-started
	d.Dispatch(Event{Type: "resize"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Type: "resize"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("resize", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())
	d.Register("scroll", func(e Event) (any, error) {
		return nil, errors.New("bad fraction")
	}, Logged())

	_, err := d.Dispatch(Event{Type: "resize", Payload: json.RawMessage(`{"mobile":true}`)})
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Type: "scroll"})
	require.Error(t, err)

	messages := logger.snapshot()
	require.Len(t, messages, 4)
	assert.Contains(t, messages[0], "handling message")
	assert.Contains(t, messages[1], "message complete")
	assert.Contains(t, messages[3], "ERROR: message failed")
}

func TestDispatcher_CloseDrainsAndRejects(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)

	var processed atomic.Int32
	d.Register("scroll", func(e Event) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		_, err := d.Dispatch(Event{Type: "scroll"})
		require.NoError(t, err)
	}

	d.Close()
	assert.Equal(t, int32(5), processed.Load())

	_, err = d.Dispatch(Event{Type: "scroll"})
	assert.ErrorIs(t, err, ErrClosed)

	d.Close()
}
