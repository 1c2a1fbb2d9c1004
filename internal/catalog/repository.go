package catalog

import (
	"context"
	"errors"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

var ErrEmptySchedule = errors.New("schedule has no events")

// Repository provides the content tables: category metadata and the day
// schedule used by the quiz.
type Repository interface {
	Categories(ctx context.Context) (*models.CategoryTable, error)
	Schedule(ctx context.Context) ([]models.DayEvent, error)
}

// Defaults serves the built-in tables.
type Defaults struct{}

func (Defaults) Categories(context.Context) (*models.CategoryTable, error) {
	return models.DefaultCategoryTable(), nil
}

func (Defaults) Schedule(context.Context) ([]models.DayEvent, error) {
	return models.DefaultSchedule(), nil
}

// Load reads both tables from repo, falling back to the defaults for any
// table repo cannot provide. The returned error is the first failure, or nil.
func Load(ctx context.Context, repo Repository) (*models.CategoryTable, []models.DayEvent, error) {
	var firstErr error

	table, err := repo.Categories(ctx)
	if err != nil {
		firstErr = err
		table = models.DefaultCategoryTable()
	}

	schedule, err := repo.Schedule(ctx)
	if err == nil && len(schedule) == 0 {
		err = ErrEmptySchedule
	}
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		schedule = models.DefaultSchedule()
	}
	return table, schedule, firstErr
}
