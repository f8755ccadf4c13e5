// Package server exposes the timeline over HTTP: static track geometry,
// stateless frames, an SVG rendering and WebSocket scroll sessions.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/folio-labs/journey/internal/cache"
	"github.com/folio-labs/journey/internal/content"
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/stream"
	"github.com/folio-labs/journey/internal/timeline"
	"github.com/folio-labs/journey/pkg/core"

	ws "github.com/gorilla/websocket"
)

// Dependencies holds all dependencies needed by the HTTP handlers
type Dependencies struct {
	Content        *content.Context
	Tracks         *cache.TrackCache
	Sessions       *cache.SafeCounter
	Session        timeline.Options
	AllowedOrigins []string
	Logger         *slog.Logger
	BaseContext    context.Context
}

// Service serves the timeline
type Service struct {
	deps     Dependencies
	log      *slog.Logger
	upgrader *ws.Upgrader
	registry *registry

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

// NewService creates a new HTTP service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracks == nil {
		deps.Tracks = cache.NewTrackCache()
	}
	if deps.Sessions == nil {
		deps.Sessions = &cache.SafeCounter{}
	}
	if deps.Content == nil {
		deps.Content = content.NewContext(nil)
	}
	if deps.Session.Layout == (geo.Layout{}) {
		deps.Session.Layout = geo.DefaultLayout()
	}
	if deps.Session.MobileLayout == (geo.Layout{}) {
		deps.Session.MobileLayout = deps.Session.Layout.Mobile()
	}
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)

	return &Service{
		deps:     deps,
		log:      deps.Logger,
		upgrader: stream.NewUpgrader(deps.AllowedOrigins),
		registry: newRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the routes of the service
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/timeline/frame", s.handleFrame)
	mux.HandleFunc("GET /timeline.svg", s.handleSVG)
	mux.HandleFunc("GET /ws", s.handleWS)
	return s.withCORS(mux)
}

// Broadcast hands a new milestone list to every mounted session. It returns
// the number of sessions notified.
func (s *Service) Broadcast(milestones []core.Milestone) int {
	n := s.registry.broadcast(milestones)
	s.log.Info("Broadcast milestones", "milestones", len(milestones), "sessions", n)
	return n
}

// ActiveSessions returns the number of mounted sessions.
func (s *Service) ActiveSessions() int {
	return s.registry.len()
}

// Shutdown ends every session and waits for their sockets to close.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d sessions: %w", s.registry.len(), ctx.Err())
	}
}

// track registers a socket handler unless the service is shutting down.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.sessions.Add(1)
	return true
}

func (s *Service) layoutFor(r *http.Request) (geo.Layout, bool) {
	if isMobile(r) {
		return s.deps.Session.MobileLayout, true
	}
	return s.deps.Session.Layout, false
}

func isMobile(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("mobile"))
	return v == "1" || v == "true" || v == "yes"
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) originAllowed(origin string) bool {
	for _, a := range s.deps.AllowedOrigins {
		if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func parseFraction(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing p")
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid p %q", raw)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("p must be finite")
	}
	return p, nil
}
