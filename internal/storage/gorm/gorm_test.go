package gormstorage

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/database"
	"github.com/folio-labs/journey/internal/model"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestBackend(t *testing.T, table string) (*Backend, *database.Manager) {
	t.Helper()
	cfg := config.GormConfig{
		Table:       table,
		SqlitePath:  filepath.Join(t.TempDir(), "journey.db"),
		AutoMigrate: true,
	}
	mgr := database.NewManager(zerolog.New(io.Discard), cfg)
	require.NoError(t, mgr.ConnectLocal())
	require.NoError(t, mgr.Setup())
	t.Cleanup(func() { _ = mgr.Close() })

	b := New(Dependencies{
		DB:              mgr.DB,
		Logger:          zerolog.New(io.Discard),
		IsDatabaseValid: func() bool { return mgr.IsValid },
	}, cfg)
	require.NoError(t, b.Init())
	return b, mgr
}

func TestInit_InvalidDatabase(t *testing.T) {
	b := New(Dependencies{}, config.GormConfig{})
	assert.Error(t, b.Init())

	_, err := b.Milestones(context.Background())
	assert.Error(t, err)
}

func TestMilestones_Empty(t *testing.T) {
	b, _ := newTestBackend(t, "experiences")

	_, err := b.Milestones(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoMilestones)
}

func TestMilestones_OrderedBySortOrder(t *testing.T) {
	b, mgr := newTestBackend(t, "experiences")

	rows := []model.Experience{
		{SortOrder: 2, Role: "Lead", Company: "Initech", StartDate: "2021"},
		{SortOrder: 0, Role: "Intern", Company: "Hooli", StartDate: "2015", Highlights: datatypes.JSON(`["first job"]`)},
		{SortOrder: 1, Role: "Engineer", Company: "Acme", StartDate: "2017"},
	}
	require.NoError(t, mgr.DB.Create(&rows).Error)

	ms, err := b.Milestones(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, "Intern", ms[0].Role)
	assert.Equal(t, []string{"first job"}, ms[0].Highlights)
	assert.Equal(t, "Engineer", ms[1].Role)
	assert.Equal(t, "Lead", ms[2].Role)
}

func TestSaveMilestones_Replaces(t *testing.T) {
	b, _ := newTestBackend(t, "career")
	ctx := context.Background()
	end := "2020"

	first := []core.Milestone{
		{Role: "A", Company: "a", StartDate: "2010", EndDate: &end},
		{Role: "B", Company: "b", StartDate: "2020"},
	}
	require.NoError(t, b.SaveMilestones(ctx, first))

	got, err := b.Milestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := []core.Milestone{{Role: "C", Company: "c", StartDate: "2024", Highlights: []string{"x", "y"}}}
	require.NoError(t, b.SaveMilestones(ctx, second))

	got, err = b.Milestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	require.NoError(t, b.SaveMilestones(ctx, nil))
	_, err = b.Milestones(ctx)
	assert.ErrorIs(t, err, storage.ErrNoMilestones)
}
