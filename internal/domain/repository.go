package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusUpdate describes a guarded status change applied through
// RequestRepository.UpdateStatus. Repositories enforce the transition
// table before writing.
type StatusUpdate struct {
	Status           RequestStatus
	Actor            string
	Reason           string
	AutoCancelled    bool
	ActualReturnDate *time.Time
	ReceivedBy       string
	Comments         string
}

// RequestRepository defines the interface for cash request persistence operations
type RequestRepository interface {
	// Create creates a new cash request
	Create(ctx context.Context, request *CashRequest) error

	// GetByID retrieves a request by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*CashRequest, error)

	// GetActive retrieves all requests in Approved or Issued status —
	// the population the monitoring scheduler evaluates each tick
	GetActive(ctx context.Context) ([]*CashRequest, error)

	// Update persists the full request entity
	Update(ctx context.Context, request *CashRequest) error

	// UpdateStatus applies a guarded status transition and returns the
	// updated request. Returns *InvalidTransitionError when the change is
	// not permitted from the stored status.
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*CashRequest, error)
}

// InventoryRepository defines the interface for banknote stock persistence operations
type InventoryRepository interface {
	// GetLines retrieves every (series, denomination) stock line
	GetLines(ctx context.Context) ([]*InventoryLine, error)

	// ApplyDelta changes the quantity of one line by delta, recording the
	// reason and actor. It must reject any change that would leave the
	// quantity negative.
	ApplyDelta(ctx context.Context, series NoteSeries, denomination Denomination, delta int, reason, actor string) error

	// GetMovements returns the most recent stock movements, newest first
	GetMovements(ctx context.Context, limit int) ([]*InventoryMovement, error)
}

// IssueRepository defines the interface for reported-issue persistence
// operations. Comments travel with the issue entity; Update persists the
// full record including its comment thread.
type IssueRepository interface {
	// Create creates a new issue
	Create(ctx context.Context, issue *Issue) error

	// GetByID retrieves an issue by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Issue, error)

	// List retrieves issues matching the filter, newest first
	List(ctx context.Context, filter IssueFilter) ([]*Issue, error)

	// Update persists the full issue entity
	Update(ctx context.Context, issue *Issue) error
}

// NotificationSink receives escalation and cancellation events.
// Implementations are expected to be non-blocking and safe for
// concurrent use; delivery is fire-and-forget.
type NotificationSink interface {
	NotifyWarning(requestID uuid.UUID, minutesRemaining int)
	NotifyOverdue(requestID uuid.UUID, hoursOverdue, minutesOverdue int)
	NotifyAutoCancelled(requestID uuid.UUID, reason string)
}

// AuditSink records structured audit events. Fire-and-forget.
type AuditSink interface {
	Record(eventType string, payload map[string]any)
}

// Clock supplies the current time. Injected so engines can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}
