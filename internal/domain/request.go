package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus represents the lifecycle state of a cash request
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusIssued    RequestStatus = "issued"
	StatusReturned  RequestStatus = "returned"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
	StatusRejected  RequestStatus = "rejected"
)

// allowedTransitions encodes the status machine:
// Pending -> Approved -> Issued -> Returned -> Completed, monotonic,
// with Cancelled/Rejected reachable from Pending, Approved and Issued only.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:  {StatusApproved, StatusCancelled, StatusRejected},
	StatusApproved: {StatusIssued, StatusCancelled, StatusRejected},
	StatusIssued:   {StatusReturned, StatusCancelled, StatusRejected},
	StatusReturned: {StatusCompleted},
}

// CanTransition reports whether a status change from -> to is permitted
func CanTransition(from, to RequestStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BankNoteLine represents a requested quantity of a single denomination.
// Series is empty on the request itself; it is fixed by the allocation
// recorded when stock is reserved.
type BankNoteLine struct {
	Denomination Denomination `json:"denomination"`
	Quantity     int          `json:"quantity"`
	Series       NoteSeries   `json:"series,omitempty"`
}

// CashRequest represents a teller cash request entity in the domain layer
type CashRequest struct {
	ID                        uuid.UUID
	RequesterID               string
	RequesterName             string
	Department                string
	BankNotes                 []BankNoteLine
	Status                    RequestStatus
	DateRequested             time.Time
	DateApproved              *time.Time
	ExpectedReturnDate        *time.Time
	ActualReturnDate          *time.Time
	IssuedBy                  string
	CashCountedBeforeIssuance bool
	CashCountedOnReturn       bool
	CashReceivedBy            string
	Comments                  string
	CancellationReason        string
	CancelledBy               string
	IsAutoCancelled           bool
	// ReservedAllocation records exactly which series lines the approval
	// reservation was drawn from, so a release can reverse it precisely.
	ReservedAllocation Allocation
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate ensures the request adheres to domain rules
// Returns an error if validation fails
func (r *CashRequest) Validate() error {
	if r.RequesterName == "" {
		return errors.New("requester name cannot be empty")
	}

	if len(r.BankNotes) == 0 {
		return errors.New("request must contain at least one bank note line")
	}

	for _, line := range r.BankNotes {
		if !line.Denomination.Valid() {
			return errors.New("bank note line has an unknown denomination")
		}
		if line.Quantity <= 0 {
			return errors.New("bank note line quantity must be positive")
		}
	}

	return nil
}

// Transition moves the request to a new status, enforcing the status machine.
// Returns *InvalidTransitionError when the change is not permitted from the
// current status; the request is left untouched in that case.
func (r *CashRequest) Transition(to RequestStatus) error {
	if !CanTransition(r.Status, to) {
		return &InvalidTransitionError{RequestID: r.ID, From: r.Status, To: to}
	}
	r.Status = to
	return nil
}

// TotalAmount returns the total monetary value of the requested notes
func (r *CashRequest) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.BankNotes {
		lineValue := decimal.NewFromInt(int64(line.Denomination)).Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineValue)
	}
	return total
}

// IsActive reports whether the request is in the population the monitoring
// scheduler cares about (reserved or outstanding cash).
func (r *CashRequest) IsActive() bool {
	return r.Status == StatusApproved || r.Status == StatusIssued
}
