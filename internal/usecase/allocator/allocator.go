package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// Allocator deducts and returns banknote quantities across note series
// using an explicit priority order. Every mutating call is transactional:
// either the full requested quantity is moved or no state changes.
//
// A single mutex serializes all calls, so the plan computed from a stock
// snapshot cannot be invalidated by a concurrent allocation in-process.
type Allocator struct {
	repo     domain.InventoryRepository
	priority []domain.NoteSeries
	mu       sync.Mutex
}

// New creates an allocator over the given repository. An empty priority
// list falls back to the default series order.
func New(repo domain.InventoryRepository, priority []domain.NoteSeries) *Allocator {
	if len(priority) == 0 {
		priority = domain.DefaultSeriesPriority
	}
	return &Allocator{
		repo:     repo,
		priority: priority,
	}
}

// Allocate reserves quantity notes of the given denomination, walking the
// series in priority order and consuming from each until the quantity is
// satisfied. Returns the exact per-series draw so it can be reversed later.
//
// Fails with *domain.InsufficientStockError — without touching the
// repository — when total available stock is short of the request.
func (a *Allocator) Allocate(ctx context.Context, denomination domain.Denomination, quantity int, reason, actor string) (domain.Allocation, error) {
	if quantity <= 0 {
		return nil, errors.New("allocation quantity must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	available, err := a.availableBySeries(ctx, denomination)
	if err != nil {
		return nil, err
	}

	// 1. Plan the draw against the snapshot. No writes happen here, so a
	//    shortfall leaves the repository untouched.
	plan := make(domain.Allocation, 0, len(a.priority))
	remaining := quantity

	for _, series := range a.priority {
		seriesQty := available[series]
		if remaining == 0 || seriesQty == 0 {
			continue
		}

		take := seriesQty
		if take > remaining {
			take = remaining
		}

		plan = append(plan, domain.AllocationPart{
			Series:       series,
			Denomination: denomination,
			Quantity:     take,
		})
		remaining -= take
	}

	if remaining > 0 {
		totalAvailable := 0
		for _, series := range a.priority {
			totalAvailable += available[series]
		}
		return nil, &domain.InsufficientStockError{
			Denomination: denomination,
			Requested:    quantity,
			Available:    totalAvailable,
		}
	}

	// 2. Apply the plan. If a later delta fails, compensate the ones
	//    already applied so the call commits all-or-nothing.
	for i, part := range plan {
		if err := a.repo.ApplyDelta(ctx, part.Series, part.Denomination, -part.Quantity, reason, actor); err != nil {
			a.compensate(ctx, plan[:i], reason, actor)
			return nil, &domain.RepositoryError{Op: "allocate", Err: err}
		}
	}

	return plan, nil
}

// Release returns quantity notes of a denomination to stock. The notes go
// back to preferred when given, otherwise to the first series in priority
// order. Used for manual returns and auto-cancellation releases alike.
func (a *Allocator) Release(ctx context.Context, denomination domain.Denomination, quantity int, preferred domain.NoteSeries, reason, actor string) error {
	if quantity <= 0 {
		return errors.New("release quantity must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.release(ctx, denomination, quantity, preferred, reason, actor)
}

// ReleaseAllocation reverses a prior Allocate exactly: every part goes back
// to the series it was drawn from.
func (a *Allocator) ReleaseAllocation(ctx context.Context, allocation domain.Allocation, reason, actor string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, part := range allocation {
		if err := a.release(ctx, part.Denomination, part.Quantity, part.Series, reason, actor); err != nil {
			return fmt.Errorf("failed to release %d x %d (%s): %w", part.Quantity, part.Denomination, part.Series, err)
		}
	}
	return nil
}

// Available sums the stock of a denomination across all series
func (a *Allocator) Available(ctx context.Context, denomination domain.Denomination) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.repo.GetLines(ctx)
	if err != nil {
		return 0, &domain.RepositoryError{Op: "available", Err: err}
	}

	total := 0
	for _, line := range lines {
		if line.Denomination == denomination {
			total += line.Quantity
		}
	}
	return total, nil
}

// Priority returns the series consumption order (copy)
func (a *Allocator) Priority() []domain.NoteSeries {
	order := make([]domain.NoteSeries, len(a.priority))
	copy(order, a.priority)
	return order
}

func (a *Allocator) release(ctx context.Context, denomination domain.Denomination, quantity int, preferred domain.NoteSeries, reason, actor string) error {
	series := preferred
	if series == "" {
		series = a.priority[0]
	}

	if err := a.repo.ApplyDelta(ctx, series, denomination, quantity, reason, actor); err != nil {
		return &domain.RepositoryError{Op: "release", Err: err}
	}
	return nil
}

// availableBySeries snapshots current stock of one denomination keyed by series
func (a *Allocator) availableBySeries(ctx context.Context, denomination domain.Denomination) (map[domain.NoteSeries]int, error) {
	lines, err := a.repo.GetLines(ctx)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "allocate", Err: err}
	}

	available := make(map[domain.NoteSeries]int)
	for _, line := range lines {
		if line.Denomination == denomination {
			available[line.Series] += line.Quantity
		}
	}
	return available, nil
}

// compensate undoes already-applied parts of a failed allocation, best effort.
// Failures here cannot be rolled back further; they surface as a
// reconciliation problem for the caller to log.
func (a *Allocator) compensate(ctx context.Context, applied domain.Allocation, reason, actor string) {
	for _, part := range applied {
		_ = a.repo.ApplyDelta(ctx, part.Series, part.Denomination, part.Quantity, reason+" (compensation)", actor)
	}
}
