package server

import (
	"sync"

	"github.com/folio-labs/journey/internal/timeline"
	"github.com/folio-labs/journey/pkg/core"
)

// registry tracks mounted sessions so content changes reach all of them.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*timeline.Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*timeline.Session)}
}

func (r *registry) add(s *timeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *registry) remove(s *timeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.ID()] == s {
		delete(r.sessions, s.ID())
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *registry) broadcast(milestones []core.Milestone) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Replace(milestones)
	}
	return len(r.sessions)
}
