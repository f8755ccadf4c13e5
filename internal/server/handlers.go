package server

import (
	"net/http"

	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/render"
	"github.com/folio-labs/journey/internal/stream"
	"github.com/folio-labs/journey/internal/timeline"
	"github.com/folio-labs/journey/pkg/core"
)

type healthResponse struct {
	Status     string `json:"status"`
	Milestones int    `json:"milestones"`
	Sessions   int    `json:"sessions"`
	Version    uint64 `json:"version"`
}

type timelineResponse struct {
	Layout  geo.Layout  `json:"layout"`
	Mobile  bool        `json:"mobile"`
	N       int         `json:"n"`
	Path    string      `json:"path"`
	Width   float64     `json:"width"`
	Height  float64     `json:"height"`
	Length  float64     `json:"length"`
	WKT     string      `json:"wkt"`
	Cards   []core.Card `json:"cards"`
	Version uint64      `json:"version"`
}

func (s *Service) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Milestones: s.deps.Content.Len(),
		Sessions:   s.registry.len(),
		Version:    s.deps.Content.Version(),
	})
}

func (s *Service) handleTimeline(w http.ResponseWriter, r *http.Request) {
	l, mobile := s.layoutFor(r)
	version := s.deps.Content.Version()
	milestones := s.deps.Content.Milestones()

	track, err := s.deps.Tracks.Get(l, len(milestones))
	if err != nil {
		s.log.Error("Failed to build track", "error", err)
		s.writeError(w, http.StatusInternalServerError, "track unavailable")
		return
	}
	p := timeline.NewPipeline(l, s.deps.Session.Curve, milestones)

	s.writeJSON(w, http.StatusOK, timelineResponse{
		Layout:  l,
		Mobile:  mobile,
		N:       track.N,
		Path:    track.Path,
		Width:   track.Width(),
		Height:  track.Height(),
		Length:  track.Length,
		WKT:     track.WKT,
		Cards:   p.Cards(),
		Version: version,
	})
}

func (s *Service) handleFrame(w http.ResponseWriter, r *http.Request) {
	p, err := parseFraction(r.URL.Query().Get("p"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, _ := s.layoutFor(r)
	pipe := timeline.NewPipeline(l, s.deps.Session.Curve, s.deps.Content.Milestones())
	s.writeJSON(w, http.StatusOK, pipe.Frame(p))
}

func (s *Service) handleSVG(w http.ResponseWriter, r *http.Request) {
	l, _ := s.layoutFor(r)
	milestones := s.deps.Content.Milestones()

	track, err := s.deps.Tracks.Get(l, len(milestones))
	if err != nil {
		s.log.Error("Failed to build track", "error", err)
		http.Error(w, "track unavailable", http.StatusInternalServerError)
		return
	}
	pipe := timeline.NewPipeline(l, s.deps.Session.Curve, milestones)

	var opts render.Options
	if raw := r.URL.Query().Get("p"); raw != "" {
		p, err := parseFraction(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := pipe.Frame(p)
		opts.Frame = &f
	}

	w.Header().Set("Content-Type", render.ContentType)
	if err := render.SVG(w, track, pipe.Cards(), opts); err != nil {
		s.log.Warn("Failed to write svg", "error", err)
	}
}

func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := stream.Upgrade(w, r, s.upgrader, s.log)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	opts := s.deps.Session
	opts.Mobile = isMobile(r)
	opts.Tracks = s.deps.Tracks
	if opts.Logger == nil {
		opts.Logger = s.log
	}

	version := s.deps.Content.Version()
	sess := timeline.NewSession(conn.ID(), s.deps.Content.Milestones(), opts)
	if err := sess.Mount(s.ctx, conn); err != nil {
		s.log.Warn("Failed to mount session", "session", sess.ID(), "error", err)
		return
	}

	s.registry.add(sess)
	s.deps.Sessions.Inc()
	defer func() {
		s.registry.remove(sess)
		s.deps.Sessions.Dec()
	}()

	// content may have changed between the snapshot and registration
	if s.deps.Content.Version() != version {
		sess.Replace(s.deps.Content.Milestones())
	}

	<-sess.Done()
}
