package autocancel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/deadline"
)

// CancellationReason is recorded on every auto-cancelled request
const CancellationReason = "Auto-cancelled: Cash not collected by 3:00 PM deadline"

// SystemActor is the actor recorded for engine-driven transitions
const SystemActor = "SYSTEM"

// Grace window: approvals at or after 14:30 get 30 extra minutes past the
// 15:00 cutoff to collect.
const (
	graceThresholdHour   = 14
	graceThresholdMinute = 30
	gracePeriod          = 30 * time.Minute
)

// StockReleaser reverses a reservation recorded at approval time
type StockReleaser interface {
	ReleaseAllocation(ctx context.Context, allocation domain.Allocation, reason, actor string) error
}

// Record tracks one approved request's cancellation deadline
type Record struct {
	RequestID            uuid.UUID
	ApprovalDate         time.Time
	CancellationDeadline time.Time
	HasBeenCancelled     bool

	// cancelInFlight claims the record while a cancellation attempt runs,
	// so overlapping evaluations cannot cancel the same request twice.
	cancelInFlight bool
}

// Engine detects approved-but-uncollected requests past their cancellation
// deadline, cancels them and returns their reserved stock to inventory.
//
// Failure semantics: when the status write fails, the record is not marked
// done and the cancellation is retried on the next tick. When the inventory
// release fails after a successful status write, the request stays cancelled
// and the discrepancy is surfaced as a ReconciliationWarning — logged and
// audited, never dropped.
type Engine struct {
	requests domain.RequestRepository
	stock    StockReleaser
	calc     *deadline.Calculator
	notifier domain.NotificationSink
	audit    domain.AuditSink
	clk      domain.Clock
	log      zerolog.Logger

	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

// New creates an auto-cancellation engine
func New(
	requests domain.RequestRepository,
	stock StockReleaser,
	calc *deadline.Calculator,
	notifier domain.NotificationSink,
	audit domain.AuditSink,
	clk domain.Clock,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		requests: requests,
		stock:    stock,
		calc:     calc,
		notifier: notifier,
		audit:    audit,
		clk:      clk,
		log:      log,
		records:  make(map[uuid.UUID]*Record),
	}
}

// Observe evaluates one approved request. On first observation the
// cancellation deadline is computed from the stored approval timestamp, so
// a scheduler restarted mid-day still derives the same deadline. When the
// deadline has passed the request is cancelled and its reservation released.
func (e *Engine) Observe(ctx context.Context, request *domain.CashRequest) {
	if request.Status != domain.StatusApproved || request.DateApproved == nil {
		return
	}

	e.mu.Lock()
	record, ok := e.records[request.ID]
	if !ok {
		record = &Record{
			RequestID:            request.ID,
			ApprovalDate:         *request.DateApproved,
			CancellationDeadline: e.deadlineFor(*request.DateApproved),
		}
		e.records[request.ID] = record
	}

	// The due-check and the in-flight claim happen under the same lock:
	// a tick-driven evaluation and a forced one can observe the same due
	// request concurrently, and only one may proceed to cancel it.
	now := e.clk.Now()
	if record.HasBeenCancelled || record.cancelInFlight || now.Before(record.CancellationDeadline) {
		e.mu.Unlock()
		return
	}
	record.cancelInFlight = true
	e.mu.Unlock()

	e.cancel(ctx, request, record)
}

// deadlineFor computes the cancellation deadline for an approval timestamp:
// 15:00 same day, plus the grace window for late approvals
func (e *Engine) deadlineFor(approval time.Time) time.Time {
	d := e.calc.DeadlineFor(approval)
	if approval.Hour() >= graceThresholdHour && approval.Minute() >= graceThresholdMinute {
		d = d.Add(gracePeriod)
	}
	return d
}

func (e *Engine) cancel(ctx context.Context, request *domain.CashRequest, record *Record) {
	update := domain.StatusUpdate{
		Status:        domain.StatusCancelled,
		Actor:         SystemActor,
		Reason:        CancellationReason,
		AutoCancelled: true,
	}

	updated, err := e.requests.UpdateStatus(ctx, request.ID, update)
	if err != nil {
		// Transition writes are retried: the record stays unmarked so the
		// next tick attempts the cancellation again. An InvalidTransition
		// means the request moved on concurrently; drop it from tracking
		// on the next cleanup instead of retrying forever.
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) {
			e.log.Warn().Str("request_id", request.ID.String()).Err(err).
				Msg("auto-cancellation skipped: request no longer approved")
			e.releaseClaim(record)
			return
		}

		e.log.Error().Str("request_id", request.ID.String()).Err(err).
			Msg("auto-cancellation status write failed, will retry next tick")
		e.audit.Record("request.auto_cancel_retry", map[string]any{
			"request_id": request.ID.String(),
			"error":      err.Error(),
		})
		e.releaseClaim(record)
		return
	}

	// The request is cancelled from here on, regardless of how the
	// inventory release goes.
	e.mu.Lock()
	record.HasBeenCancelled = true
	record.cancelInFlight = false
	e.mu.Unlock()

	if len(updated.ReservedAllocation) > 0 {
		if err := e.stock.ReleaseAllocation(ctx, updated.ReservedAllocation, "auto-cancellation release", SystemActor); err != nil {
			warning := &domain.ReconciliationWarning{RequestID: request.ID, Err: err}
			e.log.Error().Str("request_id", request.ID.String()).Err(warning).
				Msg("reserved stock release failed after cancellation, manual reconciliation required")
			e.audit.Record("inventory.reconciliation_warning", map[string]any{
				"request_id": request.ID.String(),
				"allocation": updated.ReservedAllocation,
				"error":      err.Error(),
			})
		}
	}

	e.notifier.NotifyAutoCancelled(request.ID, CancellationReason)
	e.audit.Record("request.auto_cancelled", map[string]any{
		"request_id":            request.ID.String(),
		"requester":             updated.RequesterName,
		"department":            updated.Department,
		"approval_date":         record.ApprovalDate,
		"cancellation_deadline": record.CancellationDeadline,
		"total_amount":          updated.TotalAmount().String(),
	})

	e.log.Info().Str("request_id", request.ID.String()).
		Time("deadline", record.CancellationDeadline).
		Msg("auto-cancelled request: cash not collected by deadline")
}

// releaseClaim frees a record after a failed cancellation attempt so a
// later tick can retry it
func (e *Engine) releaseClaim(record *Record) {
	e.mu.Lock()
	record.cancelInFlight = false
	e.mu.Unlock()
}

// Cleanup drops records for requests no longer in Approved status
func (e *Engine) Cleanup(approved map[uuid.UUID]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id := range e.records {
		if _, ok := approved[id]; !ok {
			delete(e.records, id)
		}
	}
}

// Reset discards all tracking state (session ended)
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[uuid.UUID]*Record)
}

// TrackedCount returns how many approved requests are being tracked
func (e *Engine) TrackedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// RecordFor returns a copy of the tracking record for a request, if any.
// Exposed for status reporting and tests.
func (e *Engine) RecordFor(id uuid.UUID) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record, ok := e.records[id]
	if !ok {
		return Record{}, false
	}
	return *record, true
}
