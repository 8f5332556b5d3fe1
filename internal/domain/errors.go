package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// InsufficientStockError is returned when an allocation cannot be satisfied.
// The caller must not have partially deducted anything when this is returned.
type InsufficientStockError struct {
	Denomination Denomination
	Requested    int
	Available    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for denomination %d: requested %d, available %d (short %d)",
		e.Denomination, e.Requested, e.Available, e.Requested-e.Available)
}

// Shortfall returns how many notes the allocation was short by
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

// RepositoryError wraps a transient persistence failure. Engine loops treat
// it as retryable: the operation is attempted again on the next tick.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error in %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports a status change that is not permitted from
// the request's current status. The request is left untouched.
type InvalidTransitionError struct {
	RequestID uuid.UUID
	From      RequestStatus
	To        RequestStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for request %s: %s -> %s", e.RequestID, e.From, e.To)
}

// InvalidIssueTransitionError reports an issue status change that is not
// permitted from the issue's current status.
type InvalidIssueTransitionError struct {
	IssueID uuid.UUID
	From    IssueStatus
	To      IssueStatus
}

func (e *InvalidIssueTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for issue %s: %s -> %s", e.IssueID, e.From, e.To)
}

// ReconciliationWarning reports that a request's status changed but the
// matching inventory release failed. The request is already cancelled, so
// the stock discrepancy must be surfaced to an operator — never dropped.
type ReconciliationWarning struct {
	RequestID uuid.UUID
	Err       error
}

func (e *ReconciliationWarning) Error() string {
	return fmt.Sprintf("inventory reconciliation needed for request %s: %v", e.RequestID, e.Err)
}

func (e *ReconciliationWarning) Unwrap() error {
	return e.Err
}
