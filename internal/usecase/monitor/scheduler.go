package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/autocancel"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/deadline"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/escalation"
)

// Default tick intervals
const (
	DefaultCheckInterval = 60 * time.Second
	DefaultPulseInterval = 10 * time.Second
)

// Config holds the scheduler's tick intervals. Injectable so tests can
// single-step ticks instead of waiting on wall-clock time.
type Config struct {
	CheckInterval time.Duration
	PulseInterval time.Duration
}

// Status is a snapshot of the scheduler's internal state
type Status struct {
	Running              bool
	AlertCount           int
	TrackedWarningStages int
	TrackedCancellations int
}

// Scheduler is the monitoring loop: an evaluation tick re-derives the
// overdue alert set and drives the escalation tracker and auto-cancellation
// engine, while a faster pulse tick re-emits unmuted alerts to the
// notification sink without recomputing anything.
//
// The scheduler holds no business logic of its own. It owns the lifecycle
// of its per-request tracking state: Stop clears everything, since warning
// and cancellation tracking is meaningless without an active observer and
// must not leak across sessions.
type Scheduler struct {
	cfg      Config
	requests domain.RequestRepository
	calc     *deadline.Calculator
	tracker  *escalation.Tracker
	engine   *autocancel.Engine
	notifier domain.NotificationSink
	audit    domain.AuditSink
	clk      domain.Clock
	log      zerolog.Logger

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	alerts          []domain.OverdueAlert
	muted           map[string]bool
	notifiedOverdue map[uuid.UUID]bool
}

// New creates a monitoring scheduler. Zero intervals fall back to the
// defaults (60s evaluation, 10s pulse).
func New(
	cfg Config,
	requests domain.RequestRepository,
	calc *deadline.Calculator,
	tracker *escalation.Tracker,
	engine *autocancel.Engine,
	notifier domain.NotificationSink,
	audit domain.AuditSink,
	clk domain.Clock,
	log zerolog.Logger,
) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.PulseInterval <= 0 {
		cfg.PulseInterval = DefaultPulseInterval
	}
	return &Scheduler{
		cfg:             cfg,
		requests:        requests,
		calc:            calc,
		tracker:         tracker,
		engine:          engine,
		notifier:        notifier,
		audit:           audit,
		clk:             clk,
		log:             log,
		muted:           make(map[string]bool),
		notifiedOverdue: make(map[uuid.UUID]bool),
	}
}

// Start launches the evaluation and pulse loops. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info().
		Dur("check_interval", s.cfg.CheckInterval).
		Dur("pulse_interval", s.cfg.PulseInterval).
		Msg("starting overdue monitoring")

	// Initial evaluation so a fresh session sees the current state
	// without waiting a full interval
	s.Evaluate(ctx)

	s.wg.Add(2)
	go s.evaluationLoop(ctx)
	go s.pulseLoop(ctx)
}

// Stop halts both loops and clears all transient per-request state.
// Idempotent. The current evaluation iteration finishes before the loop
// exits, so no request's transition is abandoned halfway.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.alerts = nil
	s.muted = make(map[string]bool)
	s.notifiedOverdue = make(map[uuid.UUID]bool)
	s.mu.Unlock()

	s.tracker.Reset()
	s.engine.Reset()

	s.log.Info().Msg("stopped overdue monitoring")
}

func (s *Scheduler) evaluationLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Evaluate(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) pulseLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PulseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Pulse()
		case <-ctx.Done():
			return
		}
	}
}

// ForceEvaluate runs a single synchronous evaluation tick
func (s *Scheduler) ForceEvaluate() {
	s.Evaluate(context.Background())
}

// Evaluate is one evaluation tick: pull the active requests, drive
// auto-cancellation over the approved ones, derive overdue alerts and
// warning stages over the issued ones, then publish the new alert set.
// Every per-request failure is contained so one bad request cannot halt
// evaluation of the rest.
func (s *Scheduler) Evaluate(ctx context.Context) {
	now := s.clk.Now()

	active, err := s.requests.GetActive(ctx)
	if err != nil {
		// Transient by assumption: keep the previous alert set and let
		// the next tick retry
		s.log.Error().Err(err).Msg("failed to load active requests, skipping evaluation tick")
		s.audit.Record("monitoring.tick_failed", map[string]any{"error": err.Error()})
		return
	}

	approved := make(map[uuid.UUID]struct{})
	issued := make(map[uuid.UUID]struct{})
	alerts := make([]domain.OverdueAlert, 0)

	for _, request := range active {
		func(request *domain.CashRequest) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Str("request_id", request.ID.String()).
						Interface("panic", r).Msg("request evaluation panicked")
				}
			}()

			switch request.Status {
			case domain.StatusApproved:
				approved[request.ID] = struct{}{}
				s.engine.Observe(ctx, request)

			case domain.StatusIssued:
				if request.ExpectedReturnDate == nil {
					return
				}
				issued[request.ID] = struct{}{}

				deadlineAt := s.calc.DeadlineFor(*request.ExpectedReturnDate)
				info := s.calc.TimeUntil(deadlineAt, now)

				if info.IsOverdue {
					alerts = append(alerts, s.overdueAlert(request, info, now))
				} else {
					s.tracker.Observe(request, info.Hours*60+info.Minutes)
				}
			}
		}(request)
	}

	s.engine.Cleanup(approved)
	s.tracker.Cleanup(issued)

	s.publish(alerts, issued)
}

// overdueAlert builds the alert view for one overdue request, emitting the
// one-time overdue notification on first detection
func (s *Scheduler) overdueAlert(request *domain.CashRequest, info deadline.TimeInfo, now time.Time) domain.OverdueAlert {
	s.mu.Lock()
	first := !s.notifiedOverdue[request.ID]
	if first {
		s.notifiedOverdue[request.ID] = true
	}
	s.mu.Unlock()

	if first {
		s.notifier.NotifyOverdue(request.ID, info.Hours, info.Minutes)
		s.audit.Record("deadline.overdue", map[string]any{
			"request_id":   request.ID.String(),
			"requester":    request.RequesterName,
			"department":   request.Department,
			"total_amount": request.TotalAmount().String(),
			"overdue_by":   info.Message,
		})
	}

	return domain.OverdueAlert{
		ID:             domain.AlertID(request.ID),
		RequestID:      request.ID,
		RequesterName:  request.RequesterName,
		Department:     request.Department,
		TotalAmount:    request.TotalAmount(),
		HoursOverdue:   info.Hours,
		MinutesOverdue: info.Minutes,
		Severity:       domain.SeverityFor(info.Hours),
		LastAlertTime:  now,
	}
}

// publish swaps in the freshly derived alert set, carrying mute flags over
// and dropping tracking for requests that left the issued population
func (s *Scheduler) publish(alerts []domain.OverdueAlert, issued map[uuid.UUID]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range alerts {
		alerts[i].Muted = s.muted[alerts[i].ID]
	}
	s.alerts = alerts

	for id := range s.notifiedOverdue {
		if _, ok := issued[id]; !ok {
			delete(s.notifiedOverdue, id)
		}
	}

	// Mute state follows the same lifecycle: a mute lives as long as its
	// request stays in the issued population, never into a later overdue.
	live := make(map[string]struct{}, len(issued))
	for id := range issued {
		live[domain.AlertID(id)] = struct{}{}
	}
	for id := range s.muted {
		if _, ok := live[id]; !ok {
			delete(s.muted, id)
		}
	}
}

// Pulse re-emits every unmuted overdue alert to the notification sink.
// No state is recomputed; a slow repository can never stall the pulse.
func (s *Scheduler) Pulse() {
	s.mu.Lock()
	now := s.clk.Now()
	beeping := make([]domain.OverdueAlert, 0, len(s.alerts))
	for i := range s.alerts {
		if !s.alerts[i].Muted {
			s.alerts[i].LastAlertTime = now
			beeping = append(beeping, s.alerts[i])
		}
	}
	s.mu.Unlock()

	for _, alert := range beeping {
		s.notifier.NotifyOverdue(alert.RequestID, alert.HoursOverdue, alert.MinutesOverdue)
	}
}

// CurrentAlerts returns a snapshot copy of the published alert set
func (s *Scheduler) CurrentAlerts() []domain.OverdueAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]domain.OverdueAlert, len(s.alerts))
	copy(snapshot, s.alerts)
	return snapshot
}

// MuteAlert silences one alert's pulse re-emission
func (s *Scheduler) MuteAlert(id string) {
	s.setMuted(id, true)
}

// UnmuteAlert re-enables one alert's pulse re-emission
func (s *Scheduler) UnmuteAlert(id string) {
	s.setMuted(id, false)
}

func (s *Scheduler) setMuted(id string, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if muted {
		s.muted[id] = true
	} else {
		delete(s.muted, id)
	}
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Muted = muted
		}
	}
}

// MuteAll silences every currently published alert
func (s *Scheduler) MuteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		s.alerts[i].Muted = true
		s.muted[s.alerts[i].ID] = true
	}
}

// UnmuteAll clears all mutes
func (s *Scheduler) UnmuteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.muted = make(map[string]bool)
	for i := range s.alerts {
		s.alerts[i].Muted = false
	}
}

// CurrentStatus reports the scheduler's tracking state
func (s *Scheduler) CurrentStatus() Status {
	s.mu.Lock()
	running := s.running
	alertCount := len(s.alerts)
	s.mu.Unlock()

	return Status{
		Running:              running,
		AlertCount:           alertCount,
		TrackedWarningStages: s.tracker.TrackedCount(),
		TrackedCancellations: s.engine.TrackedCount(),
	}
}
