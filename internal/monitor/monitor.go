package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/folio-labs/journey/internal/cache"
	"github.com/folio-labs/journey/internal/model"

	"gorm.io/gorm"
)

// StatusFileName is the file the monitor rewrites on every tick.
const StatusFileName = "status.json"

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB              *gorm.DB
	Logger          *slog.Logger
	Sessions        *cache.SafeCounter
	Tracks          *cache.TrackCache
	StatusDir       string
	Interval        time.Duration
	IsDatabaseValid func() bool
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopped   chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Minute
	}
	if deps.Sessions == nil {
		deps.Sessions = &cache.SafeCounter{}
	}
	if deps.IsDatabaseValid == nil {
		deps.IsDatabaseValid = func() bool { return deps.DB != nil }
	}
	return &Service{
		deps:     deps,
		started:  time.Now(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current server status and its indented JSON form.
func (s *Service) GetStatus() (output string, status model.ServerStatus) {
	status = model.ServerStatus{
		Time:           time.Now(),
		ActiveSessions: s.deps.Sessions.Value(),
		UptimeSeconds:  time.Since(s.started).Seconds(),
	}
	if s.deps.Tracks != nil {
		hits, misses := s.deps.Tracks.Stats()
		status.TrackCache = model.CacheStats{
			Entries: s.deps.Tracks.Len(),
			Hits:    hits,
			Misses:  misses,
		}
	}

	raw, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	return string(raw), status
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.stopped = make(chan struct{})
	stop, stopped := s.stopChan, s.stopped
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
			s.deps.Logger.Error("Error creating status directory", "error", err)
		} else if f, err := os.Create(filepath.Join(s.deps.StatusDir, StatusFileName)); err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer close(stopped)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tick(statusFile)
			}
		}
	}()

	return nil
}

func (s *Service) tick(statusFile *os.File) {
	logger := s.deps.Logger
	statusStr, status := s.GetStatus()

	if statusFile != nil {
		if err := statusFile.Truncate(0); err == nil {
			_, _ = statusFile.Seek(0, 0)
			_, _ = statusFile.WriteString(statusStr + "\n")
		}
	}

	logger.Info("Server status",
		"activeSessions", status.ActiveSessions,
		"trackCacheEntries", status.TrackCache.Entries,
		"trackCacheHits", status.TrackCache.Hits,
		"trackCacheMisses", status.TrackCache.Misses,
	)

	if s.deps.DB != nil && s.deps.IsDatabaseValid() {
		if err := s.deps.DB.Create(&status).Error; err != nil {
			logger.Error("Error writing server status to database", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for its goroutine to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	stopped := s.stopped
	s.isRunning = false
	s.mu.Unlock()
	<-stopped
}
