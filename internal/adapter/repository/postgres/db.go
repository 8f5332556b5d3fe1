package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=cashdesk sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// EnsureSchema creates the cashdesk tables when they do not exist yet
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cash_requests (
			id UUID PRIMARY KEY,
			requester_id TEXT NOT NULL DEFAULT '',
			requester_name TEXT NOT NULL,
			department TEXT NOT NULL DEFAULT '',
			bank_notes JSONB NOT NULL,
			status TEXT NOT NULL,
			date_requested TIMESTAMPTZ NOT NULL,
			date_approved TIMESTAMPTZ,
			expected_return_date TIMESTAMPTZ,
			actual_return_date TIMESTAMPTZ,
			issued_by TEXT NOT NULL DEFAULT '',
			cash_counted_before_issuance BOOLEAN NOT NULL DEFAULT FALSE,
			cash_counted_on_return BOOLEAN NOT NULL DEFAULT FALSE,
			cash_received_by TEXT NOT NULL DEFAULT '',
			comments TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			cancelled_by TEXT NOT NULL DEFAULT '',
			is_auto_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			reserved_allocation JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cash_requests_status ON cash_requests (status)`,
		`CREATE TABLE IF NOT EXISTS inventory_lines (
			series TEXT NOT NULL,
			denomination INTEGER NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_by TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (series, denomination)
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			reported_by TEXT NOT NULL,
			reported_at TIMESTAMPTZ NOT NULL,
			assigned_to TEXT NOT NULL DEFAULT '',
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMPTZ,
			resolution TEXT NOT NULL DEFAULT '',
			request_id UUID,
			comments JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_status ON issues (status)`,
		`CREATE TABLE IF NOT EXISTS inventory_movements (
			id UUID PRIMARY KEY,
			movement_type TEXT NOT NULL,
			series TEXT NOT NULL,
			denomination INTEGER NOT NULL,
			quantity_change INTEGER NOT NULL,
			previous_quantity INTEGER NOT NULL,
			new_quantity INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			performed_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}
