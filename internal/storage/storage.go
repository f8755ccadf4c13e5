package storage

import (
	"context"
	"errors"

	"github.com/folio-labs/journey/pkg/core"
)

// ErrNoMilestones is returned when a content source holds no milestones.
// Callers render an empty track rather than failing.
var ErrNoMilestones = errors.New("no milestones")

// Store is the interface all content stores must satisfy. Milestones returns
// the ordered list; position in the slice is the milestone's identity.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	Milestones(ctx context.Context) ([]core.Milestone, error)
}

// Writer is an optional interface for stores that can replace their content,
// used by the seed command.
type Writer interface {
	SaveMilestones(ctx context.Context, milestones []core.Milestone) error
}

// Reloader is an optional interface for stores that cache their source and
// must be told to read it again.
type Reloader interface {
	Reload() error
}

// Load reads milestones from s and treats an empty source as an empty list.
func Load(ctx context.Context, s Store) ([]core.Milestone, error) {
	ms, err := s.Milestones(ctx)
	if errors.Is(err, ErrNoMilestones) {
		return []core.Milestone{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ms, nil
}
