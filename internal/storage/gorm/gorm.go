// Package gormstorage serves milestones from the experiences table through
// GORM. The connection comes from database.Manager, so the same store runs
// on Postgres or on the SQLite fallback.
package gormstorage

import (
	"context"
	"fmt"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/model"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies are the collaborators of the store.
type Dependencies struct {
	DB     *gorm.DB
	Logger zerolog.Logger
	// IsDatabaseValid reports whether the connection is usable.
	IsDatabaseValid func() bool
}

// Backend is the GORM content store.
type Backend struct {
	deps  Dependencies
	table string
}

var _ storage.Store = (*Backend)(nil)
var _ storage.Writer = (*Backend)(nil)

// New creates a store over cfg.Table.
func New(deps Dependencies, cfg config.GormConfig) *Backend {
	table := cfg.Table
	if table == "" {
		table = (&model.Experience{}).TableName()
	}
	if deps.IsDatabaseValid == nil {
		deps.IsDatabaseValid = func() bool { return deps.DB != nil }
	}
	return &Backend{deps: deps, table: table}
}

// Init checks that the connection is usable.
func (b *Backend) Init() error {
	if b.deps.DB == nil || !b.deps.IsDatabaseValid() {
		return fmt.Errorf("gorm store: database not valid")
	}
	return nil
}

// Close is a no-op; the connection belongs to database.Manager.
func (b *Backend) Close() error {
	return nil
}

// Milestones reads every row ordered by sort_order, then id.
func (b *Backend) Milestones(ctx context.Context) ([]core.Milestone, error) {
	if err := b.Init(); err != nil {
		return nil, err
	}

	var rows []model.Experience
	err := b.deps.DB.WithContext(ctx).
		Table(b.table).
		Order("sort_order asc").
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", b.table, err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNoMilestones
	}

	out := make([]core.Milestone, 0, len(rows))
	for _, row := range rows {
		m, err := row.ToMilestone()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	b.deps.Logger.Debug().Int("count", len(out)).Str("table", b.table).Msg("Loaded milestones")
	return out, nil
}

// SaveMilestones replaces the table content in one transaction. Slice
// position becomes sort_order.
func (b *Backend) SaveMilestones(ctx context.Context, milestones []core.Milestone) error {
	if err := b.Init(); err != nil {
		return err
	}

	rows := make([]model.Experience, 0, len(milestones))
	for i, m := range milestones {
		row, err := model.ExperienceFromMilestone(m, i)
		if err != nil {
			return fmt.Errorf("milestone %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	return b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(b.table).Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&model.Experience{}).Error; err != nil {
			return fmt.Errorf("clear %s: %w", b.table, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Table(b.table).Create(&rows).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", b.table, err)
		}
		b.deps.Logger.Info().Int("count", len(rows)).Str("table", b.table).Msg("Saved milestones")
		return nil
	})
}
