package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// inventoryRepository implements domain.InventoryRepository
type inventoryRepository struct {
	db *DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *DB) domain.InventoryRepository {
	return &inventoryRepository{db: db}
}

// GetLines retrieves every (series, denomination) stock line
func (r *inventoryRepository) GetLines(ctx context.Context) ([]*domain.InventoryLine, error) {
	query := `
		SELECT series, denomination, quantity, last_updated, updated_by
		FROM inventory_lines
		ORDER BY series, denomination
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "get inventory lines", Err: err}
	}
	defer rows.Close()

	var lines []*domain.InventoryLine
	for rows.Next() {
		var line domain.InventoryLine
		var series string
		var denomination int
		if err := rows.Scan(&series, &denomination, &line.Quantity, &line.LastUpdated, &line.UpdatedBy); err != nil {
			return nil, &domain.RepositoryError{Op: "get inventory lines", Err: err}
		}
		line.Series = domain.NoteSeries(series)
		line.Denomination = domain.Denomination(denomination)
		lines = append(lines, &line)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "get inventory lines", Err: err}
	}

	return lines, nil
}

// ApplyDelta changes one line's quantity by delta inside a database
// transaction, writing a movement row alongside. A change that would take
// the quantity negative returns *InsufficientStockError without writing.
// Lines not provisioned yet are created on their first positive delta.
func (r *inventoryRepository) ApplyDelta(ctx context.Context, series domain.NoteSeries, denomination domain.Denomination, delta int, reason, actor string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.RepositoryError{Op: "apply inventory delta", Err: err}
	}
	defer tx.Rollback()

	var previous int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM inventory_lines WHERE series = $1 AND denomination = $2 FOR UPDATE`,
		string(series), int(denomination),
	).Scan(&previous)
	missing := errors.Is(err, sql.ErrNoRows)
	if err != nil && !missing {
		return &domain.RepositoryError{Op: "apply inventory delta", Err: err}
	}

	next := previous + delta
	if next < 0 {
		return &domain.InsufficientStockError{
			Denomination: denomination,
			Requested:    -delta,
			Available:    previous,
		}
	}

	now := time.Now()
	if missing {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO inventory_lines (series, denomination, quantity, last_updated, updated_by)
			 VALUES ($1, $2, $3, $4, $5)`,
			string(series), int(denomination), next, now, actor,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE inventory_lines SET quantity = $3, last_updated = $4, updated_by = $5
			 WHERE series = $1 AND denomination = $2`,
			string(series), int(denomination), next, now, actor,
		)
	}
	if err != nil {
		return &domain.RepositoryError{Op: "apply inventory delta", Err: err}
	}

	movementType := domain.MovementAdd
	if delta < 0 {
		movementType = domain.MovementRemove
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_movements
			(id, movement_type, series, denomination, quantity_change, previous_quantity, new_quantity, reason, performed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), string(movementType), string(series), int(denomination),
		delta, previous, next, reason, actor, now,
	)
	if err != nil {
		return &domain.RepositoryError{Op: "apply inventory delta", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &domain.RepositoryError{Op: "apply inventory delta", Err: err}
	}

	return nil
}

// GetMovements returns the most recent stock movements, newest first
func (r *inventoryRepository) GetMovements(ctx context.Context, limit int) ([]*domain.InventoryMovement, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, movement_type, series, denomination, quantity_change,
		       previous_quantity, new_quantity, reason, performed_by, created_at
		FROM inventory_movements
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "get inventory movements", Err: err}
	}
	defer rows.Close()

	var movements []*domain.InventoryMovement
	for rows.Next() {
		var movement domain.InventoryMovement
		var movementType, series string
		var denomination int
		if err := rows.Scan(
			&movement.ID, &movementType, &series, &denomination,
			&movement.QuantityChange, &movement.PreviousQuantity, &movement.NewQuantity,
			&movement.Reason, &movement.PerformedBy, &movement.Timestamp,
		); err != nil {
			return nil, &domain.RepositoryError{Op: "get inventory movements", Err: err}
		}
		movement.Type = domain.MovementType(movementType)
		movement.Series = domain.NoteSeries(series)
		movement.Denomination = domain.Denomination(denomination)
		movements = append(movements, &movement)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "get inventory movements", Err: err}
	}

	return movements, nil
}
