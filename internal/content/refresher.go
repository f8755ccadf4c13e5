package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/pkg/core"
)

// Refresher polls a store and updates a Context when the list changes.
type Refresher struct {
	Store    storage.Store
	Context  *Context
	Interval time.Duration
	Logger   *slog.Logger
	// OnChange is called with the new list after every change.
	OnChange func([]core.Milestone)
}

// Refresh loads the store once. It reports whether the list changed.
func (r *Refresher) Refresh(ctx context.Context) (bool, error) {
	if rl, ok := r.Store.(storage.Reloader); ok {
		if err := rl.Reload(); err != nil {
			return false, fmt.Errorf("reload store: %w", err)
		}
	}
	milestones, err := storage.Load(ctx, r.Store)
	if err != nil {
		return false, err
	}
	if !r.Context.Set(milestones) {
		return false, nil
	}
	if r.OnChange != nil {
		r.OnChange(r.Context.Milestones())
	}
	return true, nil
}

// Run refreshes every Interval until ctx is done. A non-positive interval
// returns immediately.
func (r *Refresher) Run(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := r.Refresh(ctx)
			if err != nil {
				logger.Warn("Failed to refresh milestones", "error", err)
				continue
			}
			if changed {
				logger.Info("Milestones changed", "milestones", r.Context.Len(), "version", r.Context.Version())
			}
		}
	}
}
