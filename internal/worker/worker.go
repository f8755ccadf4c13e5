// Package worker moves session analytics off the frame loop. Sessions report
// through Manager, which implements timeline.Observer; the events go through
// buffered dispatcher handlers that write them to the Recorder.
package worker

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/folio-labs/journey/internal/dispatcher"
	"github.com/folio-labs/journey/pkg/core"
)

// Recorder persists analytics points. influx.Manager implements it.
type Recorder interface {
	RecordMilestoneReached(session string, index int, ms core.Milestone, at time.Time) error
	RecordSession(session string, milestones int, reached int, maxProgress float64, duration time.Duration, end time.Time) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Recorder        Recorder
	Logger          *slog.Logger
	IsRecorderValid func() bool
}

// Manager routes analytics events to the recorder
type Manager struct {
	deps Dependencies

	mu sync.RWMutex
	d  *dispatcher.Dispatcher

	lastWrite atomic.Int64
	dropped   atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.IsRecorderValid == nil {
		deps.IsRecorderValid = func() bool { return deps.Recorder != nil }
	}
	return &Manager{deps: deps}
}

// GetLastWriteDuration returns how long the last recorder write took.
func (m *Manager) GetLastWriteDuration() time.Duration {
	return time.Duration(m.lastWrite.Load())
}

// Dropped returns the number of events that could not be queued.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Manager) timed(fn func() error) error {
	start := time.Now()
	err := fn()
	m.lastWrite.Store(int64(time.Since(start)))
	return err
}
