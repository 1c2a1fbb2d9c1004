package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	name     TEXT PRIMARY KEY,
	label    TEXT NOT NULL,
	rate     DOUBLE PRECISION,
	tint     TEXT NOT NULL DEFAULT '#00ff41',
	fact     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS day_schedule (
	position    INTEGER PRIMARY KEY,
	time_label  TEXT NOT NULL,
	category    TEXT NOT NULL REFERENCES categories(name),
	description TEXT NOT NULL DEFAULT ''
);
`

// PostgresRepository reads the content tables from PostgreSQL. A NULL rate
// marks a category without a defined rate.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NewPostgresRepositoryFromDSN opens and pings the database.
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate creates the tables and seeds them with the defaults when empty.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, info := range models.DefaultCategoryEntries() {
		var rate sql.NullFloat64
		if info.HasRate {
			rate = sql.NullFloat64{Float64: info.Rate, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (name, label, rate, tint, fact)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO NOTHING
		`, info.Category.String(), info.Label, rate, info.Tint, info.Fact)
		if err != nil {
			return fmt.Errorf("failed to seed category %s: %w", info.Category, err)
		}
	}

	for i, ev := range models.DefaultSchedule() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO day_schedule (position, time_label, category, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (position) DO NOTHING
		`, i, ev.Time, ev.Category.String(), ev.Description)
		if err != nil {
			return fmt.Errorf("failed to seed schedule: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) Categories(ctx context.Context) (*models.CategoryTable, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, label, rate, tint, fact
		FROM categories
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var entries []models.CategoryInfo
	for rows.Next() {
		var (
			name string
			rate sql.NullFloat64
			info models.CategoryInfo
		)
		if err := rows.Scan(&name, &info.Label, &rate, &info.Tint, &info.Fact); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if info.Category, err = models.ParseCategory(name); err != nil {
			return nil, err
		}
		info.HasRate = rate.Valid
		info.Rate = rate.Float64
		entries = append(entries, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models.NewCategoryTable(entries)
}

func (r *PostgresRepository) Schedule(ctx context.Context) ([]models.DayEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT time_label, category, description
		FROM day_schedule
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	var events []models.DayEvent
	for rows.Next() {
		var (
			ev   models.DayEvent
			name string
		)
		if err := rows.Scan(&ev.Time, &name, &ev.Description); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ev.Category, err = models.ParseCategory(name); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
