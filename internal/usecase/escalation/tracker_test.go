package escalation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/cashdesk/cashdesk-backend/internal/clock"
	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// recordingSink captures notification calls for assertions
type recordingSink struct {
	warnings []firedWarning
}

type firedWarning struct {
	requestID uuid.UUID
	minutes   int
}

func (s *recordingSink) NotifyWarning(requestID uuid.UUID, minutesRemaining int) {
	s.warnings = append(s.warnings, firedWarning{requestID: requestID, minutes: minutesRemaining})
}

func (s *recordingSink) NotifyOverdue(requestID uuid.UUID, hoursOverdue, minutesOverdue int) {}

func (s *recordingSink) NotifyAutoCancelled(requestID uuid.UUID, reason string) {}

// recordingAudit captures audit events
type recordingAudit struct {
	events []string
}

func (a *recordingAudit) Record(eventType string, payload map[string]any) {
	a.events = append(a.events, eventType)
}

func issuedRequest() *domain.CashRequest {
	return &domain.CashRequest{
		ID:            uuid.New(),
		RequesterName: "Thandi Mokoena",
		Department:    "Front Office",
		Status:        domain.StatusIssued,
		BankNotes: []domain.BankNoteLine{
			{Denomination: domain.DenominationR100, Quantity: 5},
		},
	}
}

func newTestTracker(sink *recordingSink) *Tracker {
	clk := clock.NewFake(time.Date(2026, time.March, 10, 14, 0, 0, 0, time.Local))
	return New(nil, sink, &recordingAudit{}, clk)
}

func TestObserve_FiresStageWhenRemainingDropsBelowLeadTime(t *testing.T) {
	sink := &recordingSink{}
	tracker := newTestTracker(sink)
	req := issuedRequest()

	tracker.Observe(req, 45)
	assert.Empty(t, sink.warnings, "no stage due at 45 minutes remaining")

	tracker.Observe(req, 28)
	assert.Len(t, sink.warnings, 1)
	assert.Equal(t, 30, sink.warnings[0].minutes)
}

func TestObserve_StageFiresAtMostOncePerRequest(t *testing.T) {
	sink := &recordingSink{}
	tracker := newTestTracker(sink)
	req := issuedRequest()

	// Tick granularity coarser than the gap between stages: remaining
	// jumps straight past several lead times. Every stage still fires
	// exactly once across the whole sequence.
	for _, remaining := range []int{40, 29, 29, 14, 4, 4, 1} {
		tracker.Observe(req, remaining)
	}

	counts := make(map[int]int)
	for _, w := range sink.warnings {
		counts[w.minutes]++
	}
	assert.Equal(t, map[int]int{30: 1, 15: 1, 5: 1}, counts)
}

func TestObserve_CoarseTickFiresAllDueStagesTogether(t *testing.T) {
	sink := &recordingSink{}
	tracker := newTestTracker(sink)
	req := issuedRequest()

	// First observation already inside the 5-minute band: all three
	// stages are due at once
	tracker.Observe(req, 3)

	assert.Len(t, sink.warnings, 3)
}

func TestObserve_IndependentStatePerRequest(t *testing.T) {
	sink := &recordingSink{}
	tracker := newTestTracker(sink)
	reqA := issuedRequest()
	reqB := issuedRequest()

	tracker.Observe(reqA, 10)
	tracker.Observe(reqB, 40)

	assert.Len(t, sink.warnings, 2) // 30 and 15 for reqA only
	for _, w := range sink.warnings {
		assert.Equal(t, reqA.ID, w.requestID)
	}
	assert.Equal(t, 2, tracker.TrackedCount())
}

func TestCleanup_DropsDepartedRequests(t *testing.T) {
	sink := &recordingSink{}
	tracker := newTestTracker(sink)
	reqA := issuedRequest()
	reqB := issuedRequest()

	tracker.Observe(reqA, 40)
	tracker.Observe(reqB, 40)
	assert.Equal(t, 2, tracker.TrackedCount())

	tracker.Cleanup(map[uuid.UUID]struct{}{reqA.ID: {}})
	assert.Equal(t, 1, tracker.TrackedCount())
}

func TestReset_ClearsFiredStateForReusedRequestID(t *testing.T) {
	sink := &recordingSink{}
	tracker := newTestTracker(sink)
	req := issuedRequest()

	tracker.Observe(req, 20)
	assert.Len(t, sink.warnings, 1)

	tracker.Reset()
	assert.Equal(t, 0, tracker.TrackedCount())

	// Same request id in a new session: no stale "already fired" state
	tracker.Observe(req, 20)
	assert.Len(t, sink.warnings, 2)
}

func TestObserve_EmitsAuditEventPerFiredStage(t *testing.T) {
	sink := &recordingSink{}
	audit := &recordingAudit{}
	clk := clock.NewFake(time.Date(2026, time.March, 10, 14, 0, 0, 0, time.Local))
	tracker := New([]int{30, 15}, sink, audit, clk)

	tracker.Observe(issuedRequest(), 12)

	assert.Equal(t, []string{"deadline.warning", "deadline.warning"}, audit.events)
}
