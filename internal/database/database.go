package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens and verifies the Postgres connection used for durable
// route copies.
func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("🔌 Connecting to database...")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return db, nil
}

// Migrate creates the delivery_routes table if it does not exist. The table
// is the crash-recovery copy of each job's active route.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS delivery_routes (
			job_id TEXT PRIMARY KEY,
			polyline TEXT NOT NULL,
			distance_km DOUBLE PRECISION NOT NULL,
			duration_minutes DOUBLE PRECISION NOT NULL,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("✅ Database migrations completed")
	return nil
}
