package catalog

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

type brokenRepo struct {
	schedule []models.DayEvent
}

func (brokenRepo) Categories(context.Context) (*models.CategoryTable, error) {
	return nil, errors.New("connection refused")
}

func (b brokenRepo) Schedule(context.Context) ([]models.DayEvent, error) {
	return b.schedule, nil
}

func TestLoadDefaults(t *testing.T) {
	table, schedule, err := Load(context.Background(), Defaults{})
	require.NoError(t, err)
	assert.Len(t, table.Entries(), 4)
	assert.Len(t, schedule, 6)
}

func TestLoadFallsBack(t *testing.T) {
	table, schedule, err := Load(context.Background(), brokenRepo{})
	assert.EqualError(t, err, "connection refused")
	require.NotNil(t, table)
	info, lerr := table.Lookup(models.Resting)
	require.NoError(t, lerr)
	assert.Equal(t, 60.0, info.Rate)
	assert.Equal(t, models.DefaultSchedule(), schedule)
}

func TestLoadRejectsEmptySchedule(t *testing.T) {
	_, schedule, err := Load(context.Background(), emptySchedule{})
	assert.ErrorIs(t, err, ErrEmptySchedule)
	assert.Len(t, schedule, 6)
}

type emptySchedule struct{ Defaults }

func (emptySchedule) Schedule(context.Context) ([]models.DayEvent, error) { return nil, nil }

// Runs only against a real database.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	repo, err := NewPostgresRepositoryFromDSN(dsn)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrate is repeatable")

	table, err := repo.Categories(ctx)
	require.NoError(t, err)
	info, err := table.Lookup(models.Anomalous)
	require.NoError(t, err)
	assert.False(t, info.HasRate)

	schedule, err := repo.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSchedule(), schedule)
}
