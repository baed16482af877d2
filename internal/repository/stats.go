package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UserCounts summarises accounts
type UserCounts struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Active  int64 `json:"active"`
}

// PredictionStats summarises scored runs
type PredictionStats struct {
	Total             int64   `json:"total"`
	ThisWeek          int64   `json:"this_week"`
	AverageEfficiency float64 `json:"average_efficiency"`
}

// WasteStats summarises waste bookkeeping
type WasteStats struct {
	Records     int64   `json:"records"`
	TotalAmount float64 `json:"total_amount"`
	Reusable    int64   `json:"reusable"`
}

// StatsRepository runs the dashboard aggregates
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// UserCounts counts all, pending and active users
func (r *StatsRepository) UserCounts(ctx context.Context) (UserCounts, error) {
	var c UserCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE NOT is_active),
		        COUNT(*) FILTER (WHERE is_active)
		 FROM users`,
	).Scan(&c.Total, &c.Pending, &c.Active)
	if err != nil {
		return c, fmt.Errorf("failed to count users: %w", err)
	}
	return c, nil
}

// PredictionStats counts outputs overall and since weekStart
func (r *StatsRepository) PredictionStats(ctx context.Context, weekStart time.Time) (PredictionStats, error) {
	var s PredictionStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE created_at >= $1),
		        COALESCE(AVG(energy_efficiency), 0)
		 FROM production_outputs`,
		weekStart,
	).Scan(&s.Total, &s.ThisWeek, &s.AverageEfficiency)
	if err != nil {
		return s, fmt.Errorf("failed to aggregate predictions: %w", err)
	}
	return s, nil
}

// WasteStats counts waste records, their total amount and reusable share
func (r *StatsRepository) WasteStats(ctx context.Context) (WasteStats, error) {
	var s WasteStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(waste_amount), 0),
		        COUNT(*) FILTER (WHERE reuse_possible)
		 FROM waste_records`,
	).Scan(&s.Records, &s.TotalAmount, &s.Reusable)
	if err != nil {
		return s, fmt.Errorf("failed to aggregate waste: %w", err)
	}
	return s, nil
}

// PendingInputs counts inputs awaiting review
func (r *StatsRepository) PendingInputs(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM production_inputs WHERE status = 'pending'",
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending inputs: %w", err)
	}
	return n, nil
}

// Ping reports whether the database answers
func (r *StatsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
