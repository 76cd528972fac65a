package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DeliveryRoute is the durable copy of a job's active route.
type DeliveryRoute struct {
	JobID           string  `json:"job_id" db:"job_id"`
	Polyline        string  `json:"polyline" db:"polyline"`
	DistanceKm      float64 `json:"distance_km" db:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes" db:"duration_minutes"`
	UpdatedAt       int64   `json:"updated_at" db:"updated_at"`
}

// RouteStore persists the active route per job so a restarted process can
// recover it. Writes happen opportunistically after start and reroute.
type RouteStore struct {
	db *sqlx.DB
}

// NewRouteStore wraps a database connection.
func NewRouteStore(db *sqlx.DB) *RouteStore {
	return &RouteStore{db: db}
}

// SaveRoute upserts the current route for a job.
func (s *RouteStore) SaveRoute(ctx context.Context, jobID, polyline string, distanceKm, durationMinutes float64) error {
	query := `
		INSERT INTO delivery_routes (job_id, polyline, distance_km, duration_minutes, updated_at)
		VALUES ($1, $2, $3, $4, EXTRACT(EPOCH FROM NOW())::BIGINT)
		ON CONFLICT (job_id)
		DO UPDATE SET
			polyline = EXCLUDED.polyline,
			distance_km = EXCLUDED.distance_km,
			duration_minutes = EXCLUDED.duration_minutes,
			updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
	`

	if _, err := s.db.ExecContext(ctx, query, jobID, polyline, distanceKm, durationMinutes); err != nil {
		return fmt.Errorf("upsert route for job %s: %w", jobID, err)
	}
	return nil
}

// GetRoute reads the durable route for a job, or nil if none was saved.
func (s *RouteStore) GetRoute(ctx context.Context, jobID string) (*DeliveryRoute, error) {
	var route DeliveryRoute
	err := s.db.GetContext(ctx, &route, `SELECT * FROM delivery_routes WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select route for job %s: %w", jobID, err)
	}
	return &route, nil
}
