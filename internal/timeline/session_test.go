package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/folio-labs/journey/internal/beat"
	"github.com/folio-labs/journey/internal/cache"
	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/progress"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/folio-labs/journey/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeHost records everything a session sends.
type fakeHost struct {
	mu           sync.Mutex
	d            *dispatcher.Dispatcher
	subscribeErr error
	failOn       string
	unsubscribed int
	milestones   []streaming.MilestonesPayload
	frames       []core.Frame
	byes         []streaming.ByePayload
	done         chan struct{}
}

func newFakeHost() *fakeHost {
	return &fakeHost{done: make(chan struct{})}
}

func (h *fakeHost) Subscribe(d *dispatcher.Dispatcher) (func(), error) {
	if h.subscribeErr != nil {
		return nil, h.subscribeErr
	}
	h.mu.Lock()
	h.d = d
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.unsubscribed++
		h.d = nil
	}, nil
}

func (h *fakeHost) Send(typ string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if typ == h.failOn {
		return errors.New("connection reset")
	}
	switch p := payload.(type) {
	case streaming.MilestonesPayload:
		h.milestones = append(h.milestones, p)
	case core.Frame:
		h.frames = append(h.frames, p)
	case streaming.ByePayload:
		h.byes = append(h.byes, p)
	}
	return nil
}

func (h *fakeHost) Done() <-chan struct{} { return h.done }

func (h *fakeHost) dispatch(t *testing.T, typ string, payload any) error {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	h.mu.Lock()
	d := h.d
	h.mu.Unlock()
	require.NotNil(t, d, "session is not subscribed")

	_, err = d.Dispatch(dispatcher.Event{Type: typ, Payload: raw})
	return err
}

func (h *fakeHost) lastFrame() (core.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) == 0 {
		return core.Frame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

func (h *fakeHost) lastMilestones() (streaming.MilestonesPayload, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.milestones) == 0 {
		return streaming.MilestonesPayload{}, 0
	}
	return h.milestones[len(h.milestones)-1], len(h.milestones)
}

func (h *fakeHost) unsubscribes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribed
}

// recordingObserver captures analytics callbacks.
type recordingObserver struct {
	mu      sync.Mutex
	reached []int
	ended   []Summary
}

func (o *recordingObserver) MilestoneReached(_ string, index int, _ core.Milestone) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reached = append(o.reached, index)
}

func (o *recordingObserver) SessionEnded(s Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, s)
}

func (o *recordingObserver) reachedIndexes() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.reached...)
}

func milestones(n int) []core.Milestone {
	companies := []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli", "Stark"}
	out := make([]core.Milestone, n)
	for i := range out {
		out[i] = core.Milestone{
			Role:      "Engineer",
			Company:   companies[i%len(companies)],
			StartDate: "2020-01",
		}
	}
	return out
}

func testOptions() Options {
	mobile := geo.DefaultLayout().Mobile()
	mobile.Axis = 24
	return Options{
		Layout:       geo.DefaultLayout(),
		MobileLayout: mobile,
		Spring:       progress.SpringConfig{FPS: 200, Frequency: 20, Damping: 1},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracks:       cache.NewTrackCache(),
	}
}

func mount(t *testing.T, s *Session, h *fakeHost) {
	t.Helper()
	require.NoError(t, s.Mount(context.Background(), h))
	t.Cleanup(func() { _ = s.Close() })
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestNewSession_GeneratesID(t *testing.T) {
	s := NewSession("", milestones(2), testOptions())
	assert.Len(t, s.ID(), 36)
	require.NoError(t, s.Close())

	named := NewSession("abc", nil, testOptions())
	assert.Equal(t, "abc", named.ID())
	require.NoError(t, named.Close())
}

func TestMount_SendsTrackAndFirstFrame(t *testing.T) {
	h := newFakeHost()
	s := NewSession("s1", milestones(3), testOptions())
	mount(t, s, h)

	ms, count := h.lastMilestones()
	require.Equal(t, 1, count)
	assert.Equal(t, "s1", ms.Session)
	assert.False(t, ms.Mobile)
	assert.True(t, strings.HasPrefix(ms.Path, "M0,0 C"))
	assert.Equal(t, 1440.0, ms.Height)
	assert.InDelta(t, 400.0, ms.Width, 1e-6)
	require.Len(t, ms.Cards, 3)
	assert.Equal(t, core.SideRight, ms.Cards[0].Side)
	assert.Equal(t, core.SideLeft, ms.Cards[1].Side)

	f, ok := h.lastFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, core.Point{X: 0, Y: 0}, f.Marker)
	assert.Equal(t, []bool{false, false, false}, f.Beats)
}

func TestMount_Twice(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(1), testOptions())
	mount(t, s, h)

	err := s.Mount(context.Background(), newFakeHost())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already mounted")
}

func TestScroll_MarkerSettlesOnMilestone(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(3), testOptions())
	mount(t, s, h)

	require.NoError(t, h.dispatch(t, streaming.TypeScroll, streaming.ScrollPayload{
		Fraction: geo.Target(1, 3), ViewportTop: 400, ViewportHeight: 800,
	}))

	anchor := geo.DefaultLayout().Anchor(1)
	require.Eventually(t, func() bool {
		f, ok := h.lastFrame()
		if !ok {
			return false
		}
		return abs(f.Marker.X-anchor.X) < 0.5 && abs(f.Marker.Y-anchor.Y) < 0.5
	}, 3*time.Second, 10*time.Millisecond)

	f, _ := h.lastFrame()
	assert.Equal(t, geo.Target(1, 3), f.Raw)
	assert.True(t, f.Beats[0])
	assert.False(t, f.Beats[2])
	require.Len(t, f.Entrances, 3)
	assert.True(t, f.Entrances[1].Visible)
}

func TestScroll_RejectsMalformedPayload(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(2), testOptions())
	mount(t, s, h)

	raw := json.RawMessage(`{"fraction": "nope"}`)
	h.mu.Lock()
	d := h.d
	h.mu.Unlock()
	_, err := d.Dispatch(dispatcher.Event{Type: streaming.TypeScroll, Payload: raw})
	require.Error(t, err)
}

func TestClose_UnsubscribesOnce(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(2), testOptions())
	require.NoError(t, s.Mount(context.Background(), h))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	waitDone(t, s)

	assert.Equal(t, 1, h.unsubscribes())
	assert.Equal(t, ReasonClosed, s.Summary().Reason)
	require.Len(t, h.byes, 1)
	assert.Equal(t, ReasonClosed, h.byes[0].Reason)

	assert.ErrorIs(t, s.Mount(context.Background(), newFakeHost()), ErrSessionClosed)
}

func TestContextCancel_EndsSession(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(2), testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Mount(ctx, h))

	cancel()
	waitDone(t, s)

	assert.Equal(t, 1, h.unsubscribes())
	assert.Equal(t, ReasonCancelled, s.Summary().Reason)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, h.unsubscribes())
}

func TestHostDone_EndsSessionWithoutBye(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(2), testOptions())
	require.NoError(t, s.Mount(context.Background(), h))

	close(h.done)
	waitDone(t, s)

	assert.Equal(t, 1, h.unsubscribes())
	assert.Equal(t, ReasonDisconnected, s.Summary().Reason)
	assert.Empty(t, h.byes)
}

func TestMount_SubscribeError(t *testing.T) {
	h := newFakeHost()
	h.subscribeErr = errors.New("socket gone")
	s := NewSession("", milestones(2), testOptions())

	err := s.Mount(context.Background(), h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket gone")
	waitDone(t, s)

	assert.Equal(t, 0, h.unsubscribes())
	assert.Equal(t, ReasonSetupFailed, s.Summary().Reason)
	assert.ErrorIs(t, s.Mount(context.Background(), newFakeHost()), ErrSessionClosed)
}

func TestMount_SendErrorReleasesSubscription(t *testing.T) {
	h := newFakeHost()
	h.failOn = streaming.TypeFrame
	s := NewSession("", milestones(2), testOptions())

	err := s.Mount(context.Background(), h)
	require.Error(t, err)
	waitDone(t, s)
	assert.Equal(t, 1, h.unsubscribes())
}

func TestIdleTimeout(t *testing.T) {
	h := newFakeHost()
	opts := testOptions()
	opts.IdleTimeout = 30 * time.Millisecond
	obs := &recordingObserver{}
	opts.Observer = obs
	s := NewSession("", milestones(2), opts)
	require.NoError(t, s.Mount(context.Background(), h))

	waitDone(t, s)
	assert.Equal(t, ReasonIdle, s.Summary().Reason)
	assert.Equal(t, 1, h.unsubscribes())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.ended, 1)
	assert.Equal(t, ReasonIdle, obs.ended[0].Reason)
	assert.Equal(t, 2, obs.ended[0].Milestones)
}

func TestReplace_ResendsTrack(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(3), testOptions())
	mount(t, s, h)

	s.Replace(milestones(5))

	require.Eventually(t, func() bool {
		ms, count := h.lastMilestones()
		return count == 2 && len(ms.Cards) == 5
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		f, ok := h.lastFrame()
		return ok && len(f.Beats) == 5
	}, 2*time.Second, 5*time.Millisecond)

	ms, _ := h.lastMilestones()
	assert.Equal(t, 2400.0, ms.Height)
}

func TestResize_SwitchesToMobileLayout(t *testing.T) {
	h := newFakeHost()
	s := NewSession("", milestones(3), testOptions())
	mount(t, s, h)

	require.NoError(t, h.dispatch(t, streaming.TypeResize, streaming.ResizePayload{Mobile: true}))
	require.NoError(t, h.dispatch(t, streaming.TypeScroll, streaming.ScrollPayload{Fraction: 0.7}))

	require.Eventually(t, func() bool {
		ms, _ := h.lastMilestones()
		return ms.Mobile
	}, 2*time.Second, 5*time.Millisecond)

	ms, _ := h.lastMilestones()
	assert.Equal(t, "M24,0 L24,1440", ms.Path)
	for _, c := range ms.Cards {
		assert.Equal(t, core.SideCenter, c.Side)
	}

	require.Eventually(t, func() bool {
		f, ok := h.lastFrame()
		return ok && f.Marker.Y > 0
	}, 2*time.Second, 5*time.Millisecond)
	f, _ := h.lastFrame()
	assert.InDelta(t, 24.0, f.Marker.X, 1e-9)
}

func TestBeats_ReachedOncePerMilestone(t *testing.T) {
	tests := []struct {
		mode        beat.Mode
		beatsAfter  []bool
		description string
	}{
		{beat.ModeLive, []bool{false, false, false}, "live beats follow progress back"},
		{beat.ModeSticky, []bool{true, true, true}, "sticky beats stay lit"},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			h := newFakeHost()
			obs := &recordingObserver{}
			opts := testOptions()
			opts.BeatMode = tt.mode
			opts.Observer = obs
			s := NewSession("", milestones(3), opts)
			mount(t, s, h)

			require.NoError(t, h.dispatch(t, streaming.TypeScroll, streaming.ScrollPayload{Fraction: 0.95}))
			require.Eventually(t, func() bool {
				f, ok := h.lastFrame()
				return ok && f.Beats[2]
			}, 3*time.Second, 5*time.Millisecond)

			require.NoError(t, h.dispatch(t, streaming.TypeScroll, streaming.ScrollPayload{Fraction: 0.05}))
			require.Eventually(t, func() bool {
				f, ok := h.lastFrame()
				return ok && f.Stepped < geo.Target(0, 3)
			}, 3*time.Second, 5*time.Millisecond)

			f, _ := h.lastFrame()
			assert.Equal(t, tt.beatsAfter, f.Beats, tt.description)
			assert.Equal(t, []int{0, 1, 2}, obs.reachedIndexes())

			require.NoError(t, s.Close())
			assert.Equal(t, 3, s.Summary().Reached)
			assert.Greater(t, s.Summary().MaxProgress, geo.Target(2, 3))
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
