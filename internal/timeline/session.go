package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/folio-labs/journey/internal/beat"
	"github.com/folio-labs/journey/internal/cache"
	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/layout"
	"github.com/folio-labs/journey/internal/logging"
	"github.com/folio-labs/journey/internal/progress"
	"github.com/folio-labs/journey/internal/queue"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/folio-labs/journey/pkg/streaming"
	"github.com/google/uuid"
)

// ErrSessionClosed is returned when mounting a session that was closed.
var ErrSessionClosed = errors.New("session closed")

// sampleQueueSize bounds the scroll samples buffered between two ticks.
const sampleQueueSize = 32

// End reasons reported in Summary.Reason.
const (
	ReasonClosed       = "closed"
	ReasonCancelled    = "cancelled"
	ReasonDisconnected = "disconnected"
	ReasonIdle         = "idle"
	ReasonSendFailed   = "send failed"
	ReasonSetupFailed  = "setup failed"
)

// Host is the viewport a session is mounted on. Subscribe attaches the
// session's message handlers; the returned func detaches them and is called
// exactly once. Done is closed when the host goes away.
type Host interface {
	Subscribe(d *dispatcher.Dispatcher) (unsubscribe func(), err error)
	Send(typ string, payload any) error
	Done() <-chan struct{}
}

// Observer receives session analytics. Calls come from the frame loop.
type Observer interface {
	MilestoneReached(sessionID string, index int, m core.Milestone)
	SessionEnded(s Summary)
}

// Summary describes a finished session.
type Summary struct {
	ID          string        `json:"id"`
	Milestones  int           `json:"milestones"`
	Reached     int           `json:"reached"`
	MaxProgress float64       `json:"maxProgress"`
	Frames      uint64        `json:"frames"`
	Duration    time.Duration `json:"duration"`
	Reason      string        `json:"reason"`
	Ended       time.Time     `json:"ended"`
}

// Options configures a session. Zero values fall back to defaults.
type Options struct {
	Layout           geo.Layout
	MobileLayout     geo.Layout
	Mobile           bool
	Curve            progress.Curve
	Spring           progress.SpringConfig
	BeatMode         beat.Mode
	EntranceDistance float64
	IdleTimeout      time.Duration

	Logger           *slog.Logger
	DispatcherLogger dispatcher.Logger
	Observer         Observer
	Tracks           *cache.TrackCache
}

// Session drives one visitor's timeline. Scroll and resize messages arrive
// through the dispatcher on the host's read goroutine; every other field is
// owned by the frame loop.
type Session struct {
	id   string
	opts Options
	log  *slog.Logger
	ctx  context.Context
	tick time.Duration

	samples       *queue.Queue[streaming.ScrollPayload]
	resizePending atomic.Bool
	mobileRequest atomic.Bool

	pendingMu sync.Mutex
	pending   []core.Milestone
	replace   bool

	mu       sync.Mutex
	mounted  bool
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
	release  func()
	summary  Summary

	// frame loop state
	milestones []core.Milestone
	mobile     bool
	pipe       *Pipeline
	smoother   *progress.Smoother
	overlay    *beat.Overlay
	reveal     *layout.Reveal
	raw        float64
	viewport   layout.Viewport
	seq        uint64
	reachedAny []bool
	reached    int
	maxStepped float64
	started    time.Time
	lastInput  time.Time
}

// NewSession creates an unmounted session over milestones. An empty id gets
// a random UUID.
func NewSession(id string, milestones []core.Milestone, opts Options) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if opts.Layout == (geo.Layout{}) {
		opts.Layout = geo.DefaultLayout()
	}
	if opts.MobileLayout == (geo.Layout{}) {
		opts.MobileLayout = opts.Layout.Mobile()
	}
	if opts.Curve == nil {
		opts.Curve = progress.DefaultCurve
	}
	if opts.Spring.FPS <= 0 {
		opts.Spring.FPS = progress.DefaultFPS
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DispatcherLogger == nil {
		opts.DispatcherLogger = slogAdapter{opts.Logger}
	}

	s := &Session{
		id:         id,
		opts:       opts,
		log:        opts.Logger.With("session", id),
		ctx:        logging.WithSession(context.Background(), id),
		tick:       time.Second / time.Duration(opts.Spring.FPS),
		samples:    queue.New[streaming.ScrollPayload](sampleQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		milestones: append([]core.Milestone(nil), milestones...),
		mobile:     opts.Mobile,
		smoother:   progress.NewSmoother(opts.Spring),
	}
	s.rebuild()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session has ended and released its host.
func (s *Session) Done() <-chan struct{} { return s.done }

// Summary returns the end-of-session summary. It is only meaningful after
// Done is closed.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Mount subscribes to host, sends the track and the first frame, and starts
// the frame loop. If any step fails the subscription is released before Mount
// returns. The loop ends on ctx cancellation, Close, host teardown or idle
// timeout.
func (s *Session) Mount(ctx context.Context, host Host) (err error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.mounted:
		s.mu.Unlock()
		return fmt.Errorf("session %s already mounted", s.id)
	}
	s.mounted = true
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.finish(ReasonSetupFailed, nil)
		}
	}()

	d, err := dispatcher.New(s.opts.DispatcherLogger)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	d.Register(streaming.TypeScroll, s.handleScroll, dispatcher.Logged())
	d.Register(streaming.TypeResize, s.handleResize, dispatcher.Logged())

	unsubscribe, err := host.Subscribe(d)
	if err != nil {
		d.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	s.release = func() {
		unsubscribe()
		d.Close()
	}

	s.started = time.Now()
	s.lastInput = s.started
	if err := s.sendMilestones(host); err != nil {
		return err
	}
	if err := s.sendFrame(host); err != nil {
		return err
	}

	metrics().active.Add(s.ctx, 1)
	s.log.InfoContext(s.ctx, "Session mounted", "milestones", len(s.milestones), "mobile", s.mobile)
	go s.loop(ctx, host)
	return nil
}

// Close ends the session and waits for the frame loop to stop. It is safe to
// call more than once and on a session that was never mounted.
func (s *Session) Close() error {
	s.mu.Lock()
	mounted := s.mounted
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	if !mounted {
		s.finish(ReasonClosed, nil)
	}
	<-s.done
	return nil
}

// Replace swaps the milestone list. The frame loop picks it up on its next
// tick and reinitializes the smoother, beats and entrances.
func (s *Session) Replace(milestones []core.Milestone) {
	s.pendingMu.Lock()
	s.pending = append([]core.Milestone(nil), milestones...)
	s.replace = true
	s.pendingMu.Unlock()
}

func (s *Session) handleScroll(e dispatcher.Event) (any, error) {
	var p streaming.ScrollPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	if !finite(p.Fraction) || !finite(p.ViewportTop) || !finite(p.ViewportHeight) {
		return nil, fmt.Errorf("scroll: non-finite value")
	}
	s.samples.Push(p)
	return nil, nil
}

func (s *Session) handleResize(e dispatcher.Event) (any, error) {
	var p streaming.ResizePayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	s.mobileRequest.Store(p.Mobile)
	s.resizePending.Store(true)
	return nil, nil
}

func (s *Session) loop(ctx context.Context, host Host) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	reason := ReasonClosed
	farewell := host
	defer func() { s.finish(reason, farewell) }()

	for {
		select {
		case <-ctx.Done():
			reason = ReasonCancelled
			return
		case <-s.stop:
			return
		case <-host.Done():
			reason = ReasonDisconnected
			farewell = nil
			return
		case now := <-ticker.C:
			if err := s.step(now, host); err != nil {
				s.log.WarnContext(s.ctx, "Failed to send frame", "error", err)
				reason = ReasonSendFailed
				farewell = nil
				return
			}
			if s.opts.IdleTimeout > 0 && now.Sub(s.lastInput) > s.opts.IdleTimeout {
				reason = ReasonIdle
				return
			}
		}
	}
}

// step advances one animation tick and sends a frame when anything moved.
func (s *Session) step(now time.Time, host Host) error {
	changed := false

	if ms, ok := s.takeReplacement(); ok {
		resetTo := s.raw
		s.milestones = ms
		s.rebuild()
		s.smoother.Reset(resetTo)
		s.log.InfoContext(s.ctx, "Milestones replaced", "milestones", len(ms))
		if err := s.sendMilestones(host); err != nil {
			return err
		}
		changed = true
	}

	if s.resizePending.Swap(false) {
		if mobile := s.mobileRequest.Load(); mobile != s.mobile {
			s.mobile = mobile
			s.pipe = NewPipeline(s.currentLayout(), s.opts.Curve, s.milestones)
			if err := s.sendMilestones(host); err != nil {
				return err
			}
			changed = true
		}
	}

	if sample, _, ok := s.samples.Latest(); ok {
		s.raw = clamp01(sample.Fraction)
		s.viewport = layout.Viewport{Top: sample.ViewportTop, Height: sample.ViewportHeight}
		s.smoother.SetTarget(s.raw)
		s.lastInput = now
		changed = true
	}

	if !s.smoother.Settled() {
		s.smoother.Step()
		changed = true
	}

	if !changed {
		return nil
	}
	return s.sendFrame(host)
}

// rebuild resets every per-milestone structure for the current list.
func (s *Session) rebuild() {
	n := len(s.milestones)
	s.pipe = NewPipeline(s.currentLayout(), s.opts.Curve, s.milestones)
	s.overlay = beat.New(n, s.opts.BeatMode)
	s.reveal = layout.NewReveal(n)
	if s.opts.EntranceDistance > 0 {
		s.reveal.Distance = s.opts.EntranceDistance
	}
	s.reachedAny = make([]bool, n)
	s.reached = 0
}

func (s *Session) currentLayout() geo.Layout {
	if s.mobile {
		return s.opts.MobileLayout
	}
	return s.opts.Layout
}

func (s *Session) takeReplacement() ([]core.Milestone, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if !s.replace {
		return nil, false
	}
	ms := s.pending
	s.pending = nil
	s.replace = false
	return ms, true
}

// frame computes the current frame and applies beat and entrance updates.
func (s *Session) frame() core.Frame {
	n := s.pipe.Len()
	smoothed := s.smoother.Value()
	stepped := s.pipe.Stepped(smoothed)
	if stepped > s.maxStepped {
		s.maxStepped = stepped
	}

	for _, c := range s.overlay.Update(stepped) {
		if !c.Active || s.reachedAny[c.Index] {
			continue
		}
		s.reachedAny[c.Index] = true
		s.reached++
		metrics().reached.Add(s.ctx, 1)
		if s.opts.Observer != nil {
			s.opts.Observer.MilestoneReached(s.id, c.Index, s.milestones[c.Index])
		}
	}

	s.seq++
	return core.Frame{
		Seq:       s.seq,
		Raw:       s.raw,
		Smoothed:  smoothed,
		Stepped:   stepped,
		Marker:    s.pipe.Layout().PointAt(stepped, n),
		Beats:     s.overlay.Active(),
		Entrances: s.reveal.Update(s.pipe.Cards(), s.viewport),
	}
}

func (s *Session) sendFrame(host Host) error {
	if err := host.Send(streaming.TypeFrame, s.frame()); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	metrics().frames.Add(s.ctx, 1)
	return nil
}

func (s *Session) sendMilestones(host Host) error {
	l := s.currentLayout()
	n := len(s.milestones)

	var (
		track geo.Track
		err   error
	)
	if s.opts.Tracks != nil {
		track, err = s.opts.Tracks.Get(l, n)
	} else {
		track, err = geo.BuildTrack(l, n)
	}
	if err != nil {
		return fmt.Errorf("build track: %w", err)
	}

	payload := streaming.MilestonesPayload{
		Session: s.id,
		Mobile:  s.mobile,
		Path:    track.Path,
		Width:   track.Width(),
		Height:  track.Height(),
		Cards:   s.pipe.Cards(),
	}
	if err := host.Send(streaming.TypeMilestones, payload); err != nil {
		return fmt.Errorf("send milestones: %w", err)
	}
	return nil
}

// finish releases the host subscription exactly once and closes Done. When
// host is set the client is told why the session ended first.
func (s *Session) finish(reason string, host Host) {
	s.doneOnce.Do(func() {
		if host != nil {
			if err := host.Send(streaming.TypeBye, streaming.ByePayload{Reason: reason}); err != nil {
				s.log.DebugContext(s.ctx, "Failed to send bye", "error", err)
			}
		}
		if s.release != nil {
			s.release()
		}

		summary := Summary{
			ID:          s.id,
			Milestones:  len(s.milestones),
			Reached:     s.reached,
			MaxProgress: s.maxStepped,
			Frames:      s.seq,
			Reason:      reason,
			Ended:       time.Now(),
		}
		if !s.started.IsZero() {
			summary.Duration = summary.Ended.Sub(s.started)
		}

		s.mu.Lock()
		s.closed = true
		s.summary = summary
		s.mu.Unlock()

		if reason != ReasonSetupFailed && !s.started.IsZero() {
			metrics().active.Add(s.ctx, -1)
			if s.opts.Observer != nil {
				s.opts.Observer.SessionEnded(summary)
			}
			s.log.InfoContext(s.ctx, "Session ended",
				"reason", reason, "frames", summary.Frames, "reached", summary.Reached, "duration", summary.Duration)
		}
		close(s.done)
	})
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// slogAdapter lets the dispatcher log through the session logger when no
// dedicated dispatcher logger is configured.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Debug(msg string, kv ...any) { a.l.Debug(msg, kv...) }
func (a slogAdapter) Info(msg string, kv ...any)  { a.l.Info(msg, kv...) }
func (a slogAdapter) Error(msg string, kv ...any) { a.l.Error(msg, kv...) }
