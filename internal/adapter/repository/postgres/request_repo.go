package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

const requestColumns = `
	id, requester_id, requester_name, department, bank_notes, status,
	date_requested, date_approved, expected_return_date, actual_return_date,
	issued_by, cash_counted_before_issuance, cash_counted_on_return,
	cash_received_by, comments, cancellation_reason, cancelled_by,
	is_auto_cancelled, reserved_allocation, created_at, updated_at
`

// requestRepository implements domain.RequestRepository
type requestRepository struct {
	db *DB
}

// NewRequestRepository creates a new cash request repository
func NewRequestRepository(db *DB) domain.RequestRepository {
	return &requestRepository{db: db}
}

// Create creates a new cash request
func (r *requestRepository) Create(ctx context.Context, request *domain.CashRequest) error {
	bankNotes, err := json.Marshal(request.BankNotes)
	if err != nil {
		return fmt.Errorf("failed to marshal bank notes: %w", err)
	}
	allocation, err := marshalAllocation(request.ReservedAllocation)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cash_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err = r.db.ExecContext(ctx, query,
		request.ID,
		request.RequesterID,
		request.RequesterName,
		request.Department,
		bankNotes,
		string(request.Status),
		request.DateRequested,
		request.DateApproved,
		request.ExpectedReturnDate,
		request.ActualReturnDate,
		request.IssuedBy,
		request.CashCountedBeforeIssuance,
		request.CashCountedOnReturn,
		request.CashReceivedBy,
		request.Comments,
		request.CancellationReason,
		request.CancelledBy,
		request.IsAutoCancelled,
		allocation,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return &domain.RepositoryError{Op: "create request", Err: err}
	}

	return nil
}

// GetByID retrieves a request by its ID
func (r *requestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CashRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM cash_requests WHERE id = $1`

	request, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.RepositoryError{Op: "get request", Err: fmt.Errorf("request %s not found: %w", id, err)}
		}
		return nil, &domain.RepositoryError{Op: "get request", Err: err}
	}

	return request, nil
}

// GetActive retrieves all requests in approved or issued status
func (r *requestRepository) GetActive(ctx context.Context) ([]*domain.CashRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM cash_requests
		WHERE status IN ($1, $2)
		ORDER BY date_requested
	`

	rows, err := r.db.QueryContext(ctx, query, string(domain.StatusApproved), string(domain.StatusIssued))
	if err != nil {
		return nil, &domain.RepositoryError{Op: "get active requests", Err: err}
	}
	defer rows.Close()

	var requests []*domain.CashRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "get active requests", Err: err}
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "get active requests", Err: err}
	}

	return requests, nil
}

// Update persists the full request entity
func (r *requestRepository) Update(ctx context.Context, request *domain.CashRequest) error {
	bankNotes, err := json.Marshal(request.BankNotes)
	if err != nil {
		return fmt.Errorf("failed to marshal bank notes: %w", err)
	}
	allocation, err := marshalAllocation(request.ReservedAllocation)
	if err != nil {
		return err
	}

	query := `
		UPDATE cash_requests SET
			requester_id = $2, requester_name = $3, department = $4,
			bank_notes = $5, status = $6, date_requested = $7,
			date_approved = $8, expected_return_date = $9, actual_return_date = $10,
			issued_by = $11, cash_counted_before_issuance = $12,
			cash_counted_on_return = $13, cash_received_by = $14, comments = $15,
			cancellation_reason = $16, cancelled_by = $17, is_auto_cancelled = $18,
			reserved_allocation = $19, updated_at = $20
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		request.ID,
		request.RequesterID,
		request.RequesterName,
		request.Department,
		bankNotes,
		string(request.Status),
		request.DateRequested,
		request.DateApproved,
		request.ExpectedReturnDate,
		request.ActualReturnDate,
		request.IssuedBy,
		request.CashCountedBeforeIssuance,
		request.CashCountedOnReturn,
		request.CashReceivedBy,
		request.Comments,
		request.CancellationReason,
		request.CancelledBy,
		request.IsAutoCancelled,
		allocation,
		request.UpdatedAt,
	)
	if err != nil {
		return &domain.RepositoryError{Op: "update request", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.RepositoryError{Op: "update request", Err: err}
	}
	if affected == 0 {
		return &domain.RepositoryError{Op: "update request", Err: fmt.Errorf("request %s not found", request.ID)}
	}

	return nil
}

// UpdateStatus applies a guarded status transition and returns the updated
// request. The stored status is read under a row lock so concurrent
// transitions serialize; an impermissible change returns
// *InvalidTransitionError without writing.
func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.CashRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update status", Err: err}
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM cash_requests WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.RepositoryError{Op: "update status", Err: fmt.Errorf("request %s not found: %w", id, err)}
		}
		return nil, &domain.RepositoryError{Op: "update status", Err: err}
	}

	from := domain.RequestStatus(current)
	if !domain.CanTransition(from, update.Status) {
		return nil, &domain.InvalidTransitionError{RequestID: id, From: from, To: update.Status}
	}

	query := `
		UPDATE cash_requests SET
			status = $2,
			cancellation_reason = CASE WHEN $3 IN ('cancelled', 'rejected') THEN $4 ELSE cancellation_reason END,
			cancelled_by = CASE WHEN $3 IN ('cancelled', 'rejected') THEN $5 ELSE cancelled_by END,
			is_auto_cancelled = CASE WHEN $3 = 'cancelled' THEN $6 ELSE is_auto_cancelled END,
			actual_return_date = COALESCE($7, actual_return_date),
			cash_received_by = CASE WHEN $8 <> '' THEN $8 ELSE cash_received_by END,
			comments = CASE WHEN $9 <> '' THEN $9 ELSE comments END,
			updated_at = $10
		WHERE id = $1
	`

	_, err = tx.ExecContext(ctx, query,
		id,
		string(update.Status),
		string(update.Status),
		update.Reason,
		update.Actor,
		update.AutoCancelled,
		update.ActualReturnDate,
		update.ReceivedBy,
		update.Comments,
		time.Now(),
	)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update status", Err: err}
	}

	request, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM cash_requests WHERE id = $1`, id))
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update status", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.RepositoryError{Op: "update status", Err: err}
	}

	return request, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.CashRequest, error) {
	var (
		request    domain.CashRequest
		bankNotes  []byte
		status     string
		approved   sql.NullTime
		expected   sql.NullTime
		actual     sql.NullTime
		allocation []byte
	)

	err := row.Scan(
		&request.ID,
		&request.RequesterID,
		&request.RequesterName,
		&request.Department,
		&bankNotes,
		&status,
		&request.DateRequested,
		&approved,
		&expected,
		&actual,
		&request.IssuedBy,
		&request.CashCountedBeforeIssuance,
		&request.CashCountedOnReturn,
		&request.CashReceivedBy,
		&request.Comments,
		&request.CancellationReason,
		&request.CancelledBy,
		&request.IsAutoCancelled,
		&allocation,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	request.Status = domain.RequestStatus(status)
	if approved.Valid {
		request.DateApproved = &approved.Time
	}
	if expected.Valid {
		request.ExpectedReturnDate = &expected.Time
	}
	if actual.Valid {
		request.ActualReturnDate = &actual.Time
	}

	if err := json.Unmarshal(bankNotes, &request.BankNotes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bank notes: %w", err)
	}
	if len(allocation) > 0 {
		if err := json.Unmarshal(allocation, &request.ReservedAllocation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reserved allocation: %w", err)
		}
	}

	return &request, nil
}

func marshalAllocation(allocation domain.Allocation) ([]byte, error) {
	if allocation == nil {
		allocation = domain.Allocation{}
	}
	data, err := json.Marshal(allocation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reserved allocation: %w", err)
	}
	return data, nil
}
