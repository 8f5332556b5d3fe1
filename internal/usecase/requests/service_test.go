package requests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashdesk/cashdesk-backend/internal/clock"
	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/deadline"
)

// memoryRequestRepository is an in-memory RequestRepository enforcing the
// same transition guard the real repository does
type memoryRequestRepository struct {
	byID map[uuid.UUID]*domain.CashRequest
}

func newMemoryRequests() *memoryRequestRepository {
	return &memoryRequestRepository{byID: make(map[uuid.UUID]*domain.CashRequest)}
}

func (r *memoryRequestRepository) Create(ctx context.Context, request *domain.CashRequest) error {
	stored := *request
	r.byID[request.ID] = &stored
	return nil
}

func (r *memoryRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CashRequest, error) {
	stored, ok := r.byID[id]
	if !ok {
		return nil, &domain.RepositoryError{Op: "get_by_id", Err: context.Canceled}
	}
	copied := *stored
	return &copied, nil
}

func (r *memoryRequestRepository) GetActive(ctx context.Context) ([]*domain.CashRequest, error) {
	var out []*domain.CashRequest
	for _, stored := range r.byID {
		if stored.IsActive() {
			copied := *stored
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryRequestRepository) Update(ctx context.Context, request *domain.CashRequest) error {
	if _, ok := r.byID[request.ID]; !ok {
		return &domain.RepositoryError{Op: "update", Err: context.Canceled}
	}
	stored := *request
	r.byID[request.ID] = &stored
	return nil
}

func (r *memoryRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.CashRequest, error) {
	stored, ok := r.byID[id]
	if !ok {
		return nil, &domain.RepositoryError{Op: "update_status", Err: context.Canceled}
	}
	if !domain.CanTransition(stored.Status, update.Status) {
		return nil, &domain.InvalidTransitionError{RequestID: id, From: stored.Status, To: update.Status}
	}
	stored.Status = update.Status
	if update.Status == domain.StatusCancelled || update.Status == domain.StatusRejected {
		stored.CancellationReason = update.Reason
		stored.CancelledBy = update.Actor
		stored.IsAutoCancelled = update.AutoCancelled
	}
	copied := *stored
	return &copied, nil
}

// fakeAllocator serves a per-denomination pool out of a single series and
// records every allocate/release call
type fakeAllocator struct {
	available map[domain.Denomination]int
	released  []domain.Allocation
	allocated int
}

func newFakeAllocator(available map[domain.Denomination]int) *fakeAllocator {
	return &fakeAllocator{available: available}
}

func (a *fakeAllocator) Allocate(ctx context.Context, denomination domain.Denomination, quantity int, reason, actor string) (domain.Allocation, error) {
	if a.available[denomination] < quantity {
		return nil, &domain.InsufficientStockError{
			Denomination: denomination,
			Requested:    quantity,
			Available:    a.available[denomination],
		}
	}
	a.available[denomination] -= quantity
	a.allocated++
	return domain.Allocation{
		{Series: domain.SeriesMandela, Denomination: denomination, Quantity: quantity},
	}, nil
}

func (a *fakeAllocator) ReleaseAllocation(ctx context.Context, allocation domain.Allocation, reason, actor string) error {
	for _, part := range allocation {
		a.available[part.Denomination] += part.Quantity
	}
	a.released = append(a.released, allocation)
	return nil
}

func at(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, time.Local)
}

func newTestService(repo domain.RequestRepository, stock Allocator, clk domain.Clock) *Service {
	calc := deadline.NewCalculator(deadline.DefaultHour, deadline.DefaultMinute)
	return NewService(repo, stock, calc, discardAudit{}, clk, zerolog.Nop())
}

type discardAudit struct{}

func (discardAudit) Record(string, map[string]any) {}

func createPending(t *testing.T, s *Service, lines ...domain.BankNoteLine) *domain.CashRequest {
	t.Helper()
	request, err := s.Create(context.Background(), CreateInput{
		RequesterID:   "t-042",
		RequesterName: "Naledi Khumalo",
		Department:    "Branch Ops",
		BankNotes:     lines,
	})
	require.NoError(t, err)
	return request
}

func TestCreate(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(nil)
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})

	assert.Equal(t, domain.StatusPending, request.Status)
	assert.Equal(t, at(10, 9, 0), request.DateRequested)
	assert.Equal(t, "500", request.TotalAmount().String())

	stored, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestCreate_RejectsInvalidRequest(t *testing.T) {
	repo := newMemoryRequests()
	s := newTestService(repo, newFakeAllocator(nil), clock.NewFake(at(10, 9, 0)))

	_, err := s.Create(context.Background(), CreateInput{RequesterName: "No Notes"})
	require.Error(t, err)
	assert.Empty(t, repo.byID)
}

func TestApprove_ReservesStockAndRecordsAllocation(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{
		domain.DenominationR100: 20,
		domain.DenominationR50:  10,
	})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s,
		domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5},
		domain.BankNoteLine{Denomination: domain.DenominationR50, Quantity: 4},
	)

	approved, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApproved, approved.Status)
	require.NotNil(t, approved.DateApproved)
	assert.Equal(t, at(10, 9, 0), *approved.DateApproved)
	require.Len(t, approved.ReservedAllocation, 2)
	assert.Equal(t, 15, stock.available[domain.DenominationR100])
	assert.Equal(t, 6, stock.available[domain.DenominationR50])
}

func TestApprove_RejectsPastReturnDate(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})

	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(9, 0, 0))
	require.Error(t, err)
	assert.Zero(t, stock.allocated, "no stock touched on a rejected return date")
}

func TestApprove_ShortfallReleasesEarlierLines(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{
		domain.DenominationR100: 20,
		domain.DenominationR50:  2, // second line cannot be satisfied
	})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s,
		domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5},
		domain.BankNoteLine{Denomination: domain.DenominationR50, Quantity: 4},
	)

	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, domain.DenominationR50, insufficient.Denomination)

	// The R100 reservation made before the shortfall is reversed
	assert.Equal(t, 20, stock.available[domain.DenominationR100])
	assert.Len(t, stock.released, 1)

	stored, _ := repo.GetByID(context.Background(), request.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestApprove_RejectsNonPendingRequest(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})
	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))
	require.NoError(t, err)

	_, err = s.Approve(context.Background(), request.ID, "supervisor-2", at(10, 0, 0))
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.StatusApproved, invalid.From)
	assert.Equal(t, 1, stock.allocated, "double approval must not reserve twice")
}

func TestIssue(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})
	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))
	require.NoError(t, err)

	issued, err := s.Issue(context.Background(), request.ID, "teller-7", true)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusIssued, issued.Status)
	assert.Equal(t, "teller-7", issued.IssuedBy)
	assert.True(t, issued.CashCountedBeforeIssuance)
	assert.Equal(t, 15, stock.available[domain.DenominationR100], "issuance does not touch stock again")
}

func TestIssue_RequiresApprovedStatus(t *testing.T) {
	repo := newMemoryRequests()
	s := newTestService(repo, newFakeAllocator(nil), clock.NewFake(at(10, 9, 0)))

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})

	_, err := s.Issue(context.Background(), request.ID, "teller-7", true)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func issuedRequest(t *testing.T, s *Service, stock *fakeAllocator) *domain.CashRequest {
	t.Helper()
	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})
	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))
	require.NoError(t, err)
	issued, err := s.Issue(context.Background(), request.ID, "teller-7", true)
	require.NoError(t, err)
	return issued
}

func TestReturn_CountedWithoutCommentsCompletesImmediately(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)
	request := issuedRequest(t, s, stock)

	clk.Set(at(10, 14, 0))
	returned, err := s.Return(context.Background(), request.ID, ReturnInput{
		ReceivedBy:  "teller-3",
		CashCounted: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, returned.Status)
	assert.Equal(t, 20, stock.available[domain.DenominationR100], "reservation released on return")

	stored, _ := repo.GetByID(context.Background(), request.ID)
	require.NotNil(t, stored.ActualReturnDate)
	assert.Equal(t, at(10, 14, 0), *stored.ActualReturnDate)
	assert.Equal(t, "teller-3", stored.CashReceivedBy)
}

func TestReturn_WithCommentsStaysReturnedForReview(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)
	request := issuedRequest(t, s, stock)

	returned, err := s.Return(context.Background(), request.ID, ReturnInput{
		ReceivedBy:  "teller-3",
		CashCounted: true,
		Comments:    "one R100 note torn",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusReturned, returned.Status)
	assert.Equal(t, "one R100 note torn", returned.Comments)

	// A supervisor completes it afterwards
	completed, err := s.Complete(context.Background(), request.ID, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
}

func TestReturn_UncountedStaysReturned(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)
	request := issuedRequest(t, s, stock)

	returned, err := s.Return(context.Background(), request.ID, ReturnInput{ReceivedBy: "teller-3"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, returned.Status)
}

func TestCancel_AfterApprovalReleasesReservation(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})
	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 15, stock.available[domain.DenominationR100])

	cancelled, err := s.Cancel(context.Background(), request.ID, "supervisor-1", "no longer needed")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "no longer needed", cancelled.CancellationReason)
	assert.Equal(t, 20, stock.available[domain.DenominationR100])
}

func TestCancel_PendingRequestTouchesNoStock(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	s := newTestService(repo, stock, clock.NewFake(at(10, 9, 0)))

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})

	cancelled, err := s.Cancel(context.Background(), request.ID, "teller-7", "typo")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Empty(t, stock.released)
}

func TestCancel_CompletedRequestIsRejected(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)
	request := issuedRequest(t, s, stock)

	_, err := s.Return(context.Background(), request.ID, ReturnInput{ReceivedBy: "teller-3", CashCounted: true})
	require.NoError(t, err)

	_, err = s.Cancel(context.Background(), request.ID, "supervisor-1", "too late")
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.StatusCompleted, invalid.From)
}

func TestReject_AfterApprovalReleasesReservation(t *testing.T) {
	repo := newMemoryRequests()
	stock := newFakeAllocator(map[domain.Denomination]int{domain.DenominationR100: 20})
	clk := clock.NewFake(at(10, 9, 0))
	s := newTestService(repo, stock, clk)

	request := createPending(t, s, domain.BankNoteLine{Denomination: domain.DenominationR100, Quantity: 5})
	_, err := s.Approve(context.Background(), request.ID, "supervisor-1", at(10, 0, 0))
	require.NoError(t, err)

	rejected, err := s.Reject(context.Background(), request.ID, "supervisor-2", "limit exceeded")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, 20, stock.available[domain.DenominationR100])
}
