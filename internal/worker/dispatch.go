package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/internal/timeline"
	"github.com/folio-labs/journey/pkg/core"
)

// Event types handled by RegisterHandlers.
const (
	EventMilestoneReached = "analytics.milestone_reached"
	EventSessionEnded     = "analytics.session_ended"
)

type milestoneReached struct {
	Index     int            `json:"index"`
	Milestone core.Milestone `json:"milestone"`
}

// RegisterHandlers registers the analytics handlers with d and makes d the
// target of the Observer methods.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(EventMilestoneReached, m.handleMilestoneReached, dispatcher.Buffered(1000), dispatcher.Logged())
	d.Register(EventSessionEnded, m.handleSessionEnded, dispatcher.Buffered(100), dispatcher.Logged())

	m.mu.Lock()
	m.d = d
	m.mu.Unlock()
}

// MilestoneReached implements timeline.Observer.
func (m *Manager) MilestoneReached(sessionID string, index int, ms core.Milestone) {
	m.dispatch(EventMilestoneReached, sessionID, milestoneReached{Index: index, Milestone: ms})
}

// SessionEnded implements timeline.Observer.
func (m *Manager) SessionEnded(s timeline.Summary) {
	m.dispatch(EventSessionEnded, s.ID, s)
}

func (m *Manager) dispatch(typ, sessionID string, payload any) {
	m.mu.RLock()
	d := m.d
	m.mu.RUnlock()
	if d == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		m.deps.Logger.Error("Failed to encode analytics event", "type", typ, "error", err)
		return
	}
	if _, err := d.Dispatch(dispatcher.Event{Type: typ, SessionID: sessionID, Payload: raw}); err != nil {
		m.dropped.Add(1)
		m.deps.Logger.Debug("Analytics event not queued", "type", typ, "error", err)
	}
}

func (m *Manager) handleMilestoneReached(e dispatcher.Event) (any, error) {
	if !m.deps.IsRecorderValid() {
		return nil, nil
	}

	var p milestoneReached
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode milestone event: %w", err)
	}
	err := m.timed(func() error {
		return m.deps.Recorder.RecordMilestoneReached(e.SessionID, p.Index, p.Milestone, e.Timestamp)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record milestone %d: %w", p.Index, err)
	}
	return nil, nil
}

func (m *Manager) handleSessionEnded(e dispatcher.Event) (any, error) {
	if !m.deps.IsRecorderValid() {
		return nil, nil
	}

	var s timeline.Summary
	if err := e.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session summary: %w", err)
	}
	end := s.Ended
	if end.IsZero() {
		end = time.Now()
	}
	err := m.timed(func() error {
		return m.deps.Recorder.RecordSession(s.ID, s.Milestones, s.Reached, s.MaxProgress, s.Duration, end)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}
	return nil, nil
}
