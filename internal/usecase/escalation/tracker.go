package escalation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// DefaultStages are the warning lead times in minutes before the deadline
var DefaultStages = []int{30, 15, 5}

// warningStage tracks a single lead time for one request
type warningStage struct {
	minutesBefore int
	fired         bool
	lastFired     time.Time
}

// Tracker is a per-request state machine over warning lead times. Each
// stage fires at most once per request, regardless of tick granularity:
// the firing condition is "minutes remaining <= lead time", not equality,
// so a stage can never be skipped by a coarse tick interval.
//
// Stage state is created lazily on first observation and discarded when
// the request leaves the issued population (Cleanup) or the session ends
// (Reset).
type Tracker struct {
	stages   []int
	notifier domain.NotificationSink
	audit    domain.AuditSink
	clk      domain.Clock

	mu        sync.Mutex
	byRequest map[uuid.UUID][]*warningStage
}

// New creates a tracker with the given lead times (minutes). An empty
// list falls back to DefaultStages.
func New(stages []int, notifier domain.NotificationSink, audit domain.AuditSink, clk domain.Clock) *Tracker {
	if len(stages) == 0 {
		stages = DefaultStages
	}
	return &Tracker{
		stages:    stages,
		notifier:  notifier,
		audit:     audit,
		clk:       clk,
		byRequest: make(map[uuid.UUID][]*warningStage),
	}
}

// Observe evaluates the warning stages of one issued request against the
// minutes remaining to its deadline, firing every stage that is due and
// has not fired yet.
func (t *Tracker) Observe(request *domain.CashRequest, minutesRemaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stages, ok := t.byRequest[request.ID]
	if !ok {
		stages = make([]*warningStage, 0, len(t.stages))
		for _, minutes := range t.stages {
			stages = append(stages, &warningStage{minutesBefore: minutes})
		}
		t.byRequest[request.ID] = stages
	}

	for _, stage := range stages {
		if stage.fired || minutesRemaining > stage.minutesBefore {
			continue
		}

		stage.fired = true
		stage.lastFired = t.clk.Now()

		t.notifier.NotifyWarning(request.ID, stage.minutesBefore)
		t.audit.Record("deadline.warning", map[string]any{
			"request_id":        request.ID.String(),
			"requester":         request.RequesterName,
			"department":        request.Department,
			"minutes_remaining": minutesRemaining,
			"warning_stage":     stage.minutesBefore,
			"total_amount":      request.TotalAmount().String(),
		})
	}
}

// Cleanup drops stage state for requests no longer in the active set
func (t *Tracker) Cleanup(active map[uuid.UUID]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.byRequest {
		if _, ok := active[id]; !ok {
			delete(t.byRequest, id)
		}
	}
}

// Reset discards all per-request state. Called when monitoring stops so
// nothing leaks into the next session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byRequest = make(map[uuid.UUID][]*warningStage)
}

// TrackedCount returns how many requests currently have stage state
func (t *Tracker) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byRequest)
}
