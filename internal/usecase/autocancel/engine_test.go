package autocancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cashdesk/cashdesk-backend/internal/clock"
	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/deadline"
)

// MockRequestRepository is a mock implementation of RequestRepository for testing
type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Create(ctx context.Context, request *domain.CashRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CashRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashRequest), args.Error(1)
}

func (m *MockRequestRepository) GetActive(ctx context.Context) ([]*domain.CashRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CashRequest), args.Error(1)
}

func (m *MockRequestRepository) Update(ctx context.Context, request *domain.CashRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.CashRequest, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashRequest), args.Error(1)
}

// MockStockReleaser is a mock implementation of StockReleaser for testing
type MockStockReleaser struct {
	mock.Mock
}

func (m *MockStockReleaser) ReleaseAllocation(ctx context.Context, allocation domain.Allocation, reason, actor string) error {
	args := m.Called(ctx, allocation, reason, actor)
	return args.Error(0)
}

// nullSink discards notifications
type nullSink struct{}

func (nullSink) NotifyWarning(uuid.UUID, int)          {}
func (nullSink) NotifyOverdue(uuid.UUID, int, int)     {}
func (nullSink) NotifyAutoCancelled(uuid.UUID, string) {}

// nullAudit discards audit events
type nullAudit struct{}

func (nullAudit) Record(string, map[string]any) {}

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 10, hour, min, 0, 0, time.Local)
}

func approvedRequest(approvedAt time.Time) *domain.CashRequest {
	id := uuid.New()
	return &domain.CashRequest{
		ID:            id,
		RequesterName: "Sipho Dlamini",
		Department:    "Treasury",
		Status:        domain.StatusApproved,
		DateApproved:  &approvedAt,
		BankNotes: []domain.BankNoteLine{
			{Denomination: domain.DenominationR100, Quantity: 10},
		},
		ReservedAllocation: domain.Allocation{
			{Series: domain.SeriesMandela, Denomination: domain.DenominationR100, Quantity: 10},
		},
	}
}

func newEngine(repo *MockRequestRepository, stock *MockStockReleaser, clk domain.Clock) *Engine {
	calc := deadline.NewCalculator(deadline.DefaultHour, deadline.DefaultMinute)
	return New(repo, stock, calc, nullSink{}, nullAudit{}, clk, zerolog.Nop())
}

func TestDeadline_MorningApprovalHasNoGrace(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(10, 0))
	engine := newEngine(repo, stock, clk)

	req := approvedRequest(at(10, 0))
	engine.Observe(context.Background(), req)

	record, ok := engine.RecordFor(req.ID)
	require.True(t, ok)
	assert.Equal(t, at(15, 0), record.CancellationDeadline)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeadline_LateApprovalGets30MinuteGrace(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(14, 45))
	engine := newEngine(repo, stock, clk)

	req := approvedRequest(at(14, 45))
	engine.Observe(context.Background(), req)

	record, ok := engine.RecordFor(req.ID)
	require.True(t, ok)
	assert.Equal(t, at(15, 30), record.CancellationDeadline)
}

func TestObserve_CancelsWhenDeadlinePassed(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(15, 1))
	engine := newEngine(repo, stock, clk)

	req := approvedRequest(at(10, 0))

	cancelled := *req
	cancelled.Status = domain.StatusCancelled
	repo.On("UpdateStatus", mock.Anything, req.ID, mock.MatchedBy(func(u domain.StatusUpdate) bool {
		return u.Status == domain.StatusCancelled &&
			u.Actor == SystemActor &&
			u.AutoCancelled &&
			u.Reason == CancellationReason
	})).Return(&cancelled, nil)
	stock.On("ReleaseAllocation", mock.Anything, cancelled.ReservedAllocation, mock.Anything, SystemActor).Return(nil)

	engine.Observe(context.Background(), req)

	repo.AssertExpectations(t)
	stock.AssertExpectations(t)

	record, _ := engine.RecordFor(req.ID)
	assert.True(t, record.HasBeenCancelled)
}

func TestObserve_LateApprovalNotCancelledBeforeGraceExpires(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(15, 0))
	engine := newEngine(repo, stock, clk)

	// Approved 14:40 -> deadline 15:30. At 15:00 nothing happens.
	req := approvedRequest(at(14, 40))
	engine.Observe(context.Background(), req)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)

	// By 15:31 it is cancelled.
	cancelled := *req
	cancelled.Status = domain.StatusCancelled
	repo.On("UpdateStatus", mock.Anything, req.ID, mock.Anything).Return(&cancelled, nil)
	stock.On("ReleaseAllocation", mock.Anything, cancelled.ReservedAllocation, mock.Anything, SystemActor).Return(nil)

	clk.Set(at(15, 31))
	engine.Observe(context.Background(), req)

	repo.AssertExpectations(t)
	stock.AssertExpectations(t)
}

func TestObserve_IgnoresNonApprovedRequests(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(16, 0))
	engine := newEngine(repo, stock, clk)

	// Issued requests are never tracked: once cash is collected the
	// cancellation deadline no longer applies.
	req := approvedRequest(at(9, 0))
	req.Status = domain.StatusIssued

	engine.Observe(context.Background(), req)

	assert.Equal(t, 0, engine.TrackedCount())
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestObserve_StatusWriteFailureIsRetriedNextTick(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(15, 5))
	engine := newEngine(repo, stock, clk)

	req := approvedRequest(at(9, 0))

	repo.On("UpdateStatus", mock.Anything, req.ID, mock.Anything).
		Return(nil, &domain.RepositoryError{Op: "update_status", Err: assert.AnError}).Once()

	engine.Observe(context.Background(), req)

	record, _ := engine.RecordFor(req.ID)
	assert.False(t, record.HasBeenCancelled, "record must stay unmarked so the cancellation retries")

	// Next tick: the write succeeds and the release happens exactly once
	cancelled := *req
	cancelled.Status = domain.StatusCancelled
	repo.On("UpdateStatus", mock.Anything, req.ID, mock.Anything).Return(&cancelled, nil).Once()
	stock.On("ReleaseAllocation", mock.Anything, cancelled.ReservedAllocation, mock.Anything, SystemActor).Return(nil).Once()

	engine.Observe(context.Background(), req)

	record, _ = engine.RecordFor(req.ID)
	assert.True(t, record.HasBeenCancelled)
	repo.AssertExpectations(t)
	stock.AssertExpectations(t)
}

func TestObserve_ReleaseFailureMarksDoneAndAuditsReconciliation(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(15, 5))

	audit := &capturingAudit{}
	calc := deadline.NewCalculator(deadline.DefaultHour, deadline.DefaultMinute)
	engine := New(repo, stock, calc, nullSink{}, audit, clk, zerolog.Nop())

	req := approvedRequest(at(9, 0))

	cancelled := *req
	cancelled.Status = domain.StatusCancelled
	repo.On("UpdateStatus", mock.Anything, req.ID, mock.Anything).Return(&cancelled, nil).Once()
	stock.On("ReleaseAllocation", mock.Anything, cancelled.ReservedAllocation, mock.Anything, SystemActor).
		Return(assert.AnError).Once()

	engine.Observe(context.Background(), req)

	// The request is cancelled; the stock discrepancy is audited, and the
	// engine does not retry the whole cancellation
	record, _ := engine.RecordFor(req.ID)
	assert.True(t, record.HasBeenCancelled)
	assert.Contains(t, audit.events, "inventory.reconciliation_warning")

	engine.Observe(context.Background(), req)
	repo.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestObserve_ConcurrentEvaluationsCancelOnce(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(15, 5))
	engine := newEngine(repo, stock, clk)

	req := approvedRequest(at(9, 0))

	// A forced evaluation can overlap a ticker-driven one, so several
	// goroutines may observe the same due request at once. Slowing the
	// status write keeps the overlap window open; only one cancellation
	// may reach the repository.
	cancelled := *req
	cancelled.Status = domain.StatusCancelled
	repo.On("UpdateStatus", mock.Anything, req.ID, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(5 * time.Millisecond) }).
		Return(&cancelled, nil)
	stock.On("ReleaseAllocation", mock.Anything, cancelled.ReservedAllocation, mock.Anything, SystemActor).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Observe(context.Background(), req)
		}()
	}
	wg.Wait()

	repo.AssertNumberOfCalls(t, "UpdateStatus", 1)
	stock.AssertNumberOfCalls(t, "ReleaseAllocation", 1)

	record, _ := engine.RecordFor(req.ID)
	assert.True(t, record.HasBeenCancelled)
}

func TestCleanup_DropsRequestsThatLeftApproved(t *testing.T) {
	repo := new(MockRequestRepository)
	stock := new(MockStockReleaser)
	clk := clock.NewFake(at(10, 0))
	engine := newEngine(repo, stock, clk)

	reqA := approvedRequest(at(9, 0))
	reqB := approvedRequest(at(9, 30))
	engine.Observe(context.Background(), reqA)
	engine.Observe(context.Background(), reqB)
	assert.Equal(t, 2, engine.TrackedCount())

	engine.Cleanup(map[uuid.UUID]struct{}{reqB.ID: {}})
	assert.Equal(t, 1, engine.TrackedCount())

	_, ok := engine.RecordFor(reqA.ID)
	assert.False(t, ok)
}

// capturingAudit records event types for assertions
type capturingAudit struct {
	events []string
}

func (a *capturingAudit) Record(eventType string, payload map[string]any) {
	a.events = append(a.events, eventType)
}
