package requests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/deadline"
)

// Allocator reserves and releases banknote stock on behalf of the workflow
type Allocator interface {
	Allocate(ctx context.Context, denomination domain.Denomination, quantity int, reason, actor string) (domain.Allocation, error)
	ReleaseAllocation(ctx context.Context, allocation domain.Allocation, reason, actor string) error
}

// CreateInput carries the fields a requester supplies for a new cash request
type CreateInput struct {
	RequesterID   string
	RequesterName string
	Department    string
	BankNotes     []domain.BankNoteLine
	Comments      string
}

// ReturnInput carries the fields recorded when issued cash comes back
type ReturnInput struct {
	ReceivedBy       string
	CashCounted      bool
	Comments         string
	ActualReturnDate time.Time
}

// Service drives the cash request workflow: create, approve (with stock
// reservation), issue, return (with stock release), complete, cancel and
// reject. Transitions go through the domain status machine; stock moves
// are all-or-nothing per request.
type Service struct {
	requests domain.RequestRepository
	stock    Allocator
	calc     *deadline.Calculator
	audit    domain.AuditSink
	clk      domain.Clock
	log      zerolog.Logger
}

// NewService creates a cash request workflow service
func NewService(
	requests domain.RequestRepository,
	stock Allocator,
	calc *deadline.Calculator,
	audit domain.AuditSink,
	clk domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		requests: requests,
		stock:    stock,
		calc:     calc,
		audit:    audit,
		clk:      clk,
		log:      log,
	}
}

// Create registers a new pending cash request.
// Logic:
// 1. Build the entity with a fresh id and pending status
// 2. Validate domain rules (requester, note lines)
// 3. Persist
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.CashRequest, error) {
	now := s.clk.Now()
	request := &domain.CashRequest{
		ID:            uuid.New(),
		RequesterID:   input.RequesterID,
		RequesterName: input.RequesterName,
		Department:    input.Department,
		BankNotes:     input.BankNotes,
		Comments:      input.Comments,
		Status:        domain.StatusPending,
		DateRequested: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := request.Validate(); err != nil {
		return nil, err
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	s.audit.Record("request.created", map[string]any{
		"request_id":   request.ID.String(),
		"requester":    request.RequesterName,
		"department":   request.Department,
		"total_amount": request.TotalAmount().String(),
	})
	s.log.Info().Str("request_id", request.ID.String()).
		Str("requester", request.RequesterName).
		Msg("cash request created")

	return request, nil
}

// Get retrieves a single request by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.CashRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// Active lists all requests with reserved or outstanding cash
func (s *Service) Active(ctx context.Context) ([]*domain.CashRequest, error) {
	return s.requests.GetActive(ctx)
}

// Approve moves a pending request to approved, reserving stock for every
// note line.
// Logic:
// 1. Validate the expected return date against the cutoff
// 2. Check the transition is permitted before touching stock
// 3. Reserve stock line by line; any shortfall releases what was already
//    reserved and fails the approval, so stock is never partially committed
// 4. Record the reservation and approval timestamps and persist
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approver string, expectedReturn time.Time) (*domain.CashRequest, error) {
	now := s.clk.Now()

	if v := s.calc.ValidateReturnDate(expectedReturn, now); !v.IsValid {
		return nil, errors.New(v.Message)
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(request.Status, domain.StatusApproved) {
		return nil, &domain.InvalidTransitionError{RequestID: id, From: request.Status, To: domain.StatusApproved}
	}

	reserved, err := s.reserve(ctx, request, approver)
	if err != nil {
		return nil, err
	}

	request.Status = domain.StatusApproved
	request.DateApproved = &now
	request.ExpectedReturnDate = &expectedReturn
	request.ReservedAllocation = reserved
	request.UpdatedAt = now

	if err := s.requests.Update(ctx, request); err != nil {
		// The reservation must not outlive a failed approval
		s.releaseBestEffort(ctx, id, reserved, "approval rollback", approver)
		return nil, err
	}

	s.audit.Record("request.approved", map[string]any{
		"request_id":           id.String(),
		"approver":             approver,
		"expected_return_date": expectedReturn,
		"allocation":           reserved,
	})
	s.log.Info().Str("request_id", id.String()).Str("approver", approver).
		Msg("cash request approved, stock reserved")

	return request, nil
}

// reserve allocates stock for each note line of the request. On a mid-way
// failure the lines already reserved are released before returning.
func (s *Service) reserve(ctx context.Context, request *domain.CashRequest, actor string) (domain.Allocation, error) {
	reserved := domain.Allocation{}
	for _, line := range request.BankNotes {
		parts, err := s.stock.Allocate(ctx, line.Denomination, line.Quantity, "approval reservation", actor)
		if err != nil {
			s.releaseBestEffort(ctx, request.ID, reserved, "approval rollback", actor)
			return nil, err
		}
		reserved = append(reserved, parts...)
	}
	return reserved, nil
}

// releaseBestEffort returns reserved stock to inventory; a failure here is a
// reconciliation case, logged and audited rather than propagated
func (s *Service) releaseBestEffort(ctx context.Context, requestID uuid.UUID, allocation domain.Allocation, reason, actor string) {
	if len(allocation) == 0 {
		return
	}
	if err := s.stock.ReleaseAllocation(ctx, allocation, reason, actor); err != nil {
		warning := &domain.ReconciliationWarning{RequestID: requestID, Err: err}
		s.log.Error().Str("request_id", requestID.String()).Err(warning).
			Msg("stock release failed, manual reconciliation required")
		s.audit.Record("inventory.reconciliation_warning", map[string]any{
			"request_id": requestID.String(),
			"allocation": allocation,
			"error":      err.Error(),
		})
	}
}

// Issue hands the reserved cash to the requester. The reservation stays in
// place; physical notes have left the vault and the stock deduction made at
// approval now reflects reality.
func (s *Service) Issue(ctx context.Context, id uuid.UUID, issuer string, countedBeforeIssuance bool) (*domain.CashRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := request.Transition(domain.StatusIssued); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	request.IssuedBy = issuer
	request.CashCountedBeforeIssuance = countedBeforeIssuance
	request.UpdatedAt = now

	if err := s.requests.Update(ctx, request); err != nil {
		return nil, err
	}

	s.audit.Record("request.issued", map[string]any{
		"request_id": id.String(),
		"issued_by":  issuer,
		"counted":    countedBeforeIssuance,
	})
	s.log.Info().Str("request_id", id.String()).Str("issued_by", issuer).Msg("cash issued")

	return request, nil
}

// Return records issued cash coming back and releases the reservation.
// Logic:
// 1. Transition to returned and store the return details
// 2. Release the exact reserved allocation back to stock
// 3. When the cash was counted and no discrepancies were noted, the
//    request completes immediately; otherwise it stays in returned for
//    supervisor review
func (s *Service) Return(ctx context.Context, id uuid.UUID, input ReturnInput) (*domain.CashRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := request.Transition(domain.StatusReturned); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	actualReturn := input.ActualReturnDate
	if actualReturn.IsZero() {
		actualReturn = now
	}

	request.ActualReturnDate = &actualReturn
	request.CashReceivedBy = input.ReceivedBy
	request.CashCountedOnReturn = input.CashCounted
	if input.Comments != "" {
		request.Comments = input.Comments
	}
	request.UpdatedAt = now

	if err := s.requests.Update(ctx, request); err != nil {
		return nil, err
	}

	s.releaseBestEffort(ctx, id, request.ReservedAllocation, "return release", input.ReceivedBy)

	s.audit.Record("request.returned", map[string]any{
		"request_id":  id.String(),
		"received_by": input.ReceivedBy,
		"counted":     input.CashCounted,
	})

	if input.CashCounted && input.Comments == "" {
		return s.Complete(ctx, id, input.ReceivedBy)
	}

	s.log.Info().Str("request_id", id.String()).
		Msg("cash returned, pending supervisor review")
	return request, nil
}

// Complete closes a returned request
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor string) (*domain.CashRequest, error) {
	updated, err := s.requests.UpdateStatus(ctx, id, domain.StatusUpdate{
		Status: domain.StatusCompleted,
		Actor:  actor,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record("request.completed", map[string]any{
		"request_id": id.String(),
		"actor":      actor,
	})
	s.log.Info().Str("request_id", id.String()).Msg("cash request completed")

	return updated, nil
}

// Cancel cancels a request. A cancellation after approval returns the
// reserved stock to inventory; after issuance the physical cash is out and
// recovery is handled through the return flow, so no release happens.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.CashRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wasApproved := request.Status == domain.StatusApproved

	updated, err := s.requests.UpdateStatus(ctx, id, domain.StatusUpdate{
		Status: domain.StatusCancelled,
		Actor:  actor,
		Reason: reason,
	})
	if err != nil {
		return nil, err
	}

	if wasApproved {
		s.releaseBestEffort(ctx, id, updated.ReservedAllocation, "cancellation release", actor)
	}

	s.audit.Record("request.cancelled", map[string]any{
		"request_id": id.String(),
		"actor":      actor,
		"reason":     reason,
	})
	s.log.Info().Str("request_id", id.String()).Str("actor", actor).Msg("cash request cancelled")

	return updated, nil
}

// Reject declines a request. A rejection of an approved request releases
// its reservation.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.CashRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wasApproved := request.Status == domain.StatusApproved

	updated, err := s.requests.UpdateStatus(ctx, id, domain.StatusUpdate{
		Status: domain.StatusRejected,
		Actor:  actor,
		Reason: reason,
	})
	if err != nil {
		return nil, err
	}

	if wasApproved {
		s.releaseBestEffort(ctx, id, updated.ReservedAllocation, "rejection release", actor)
	}

	s.audit.Record("request.rejected", map[string]any{
		"request_id": id.String(),
		"actor":      actor,
		"reason":     reason,
	})

	return updated, nil
}
