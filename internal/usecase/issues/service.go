package issues

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// ReportInput carries the fields a teller supplies when reporting an issue
type ReportInput struct {
	Title       string
	Description string
	Category    domain.IssueCategory
	Priority    domain.IssuePriority
	ReportedBy  string
	RequestID   *uuid.UUID
}

// CategoryCount is one entry of the summary's category breakdown
type CategoryCount struct {
	Category domain.IssueCategory `json:"category"`
	Count    int                  `json:"count"`
}

// Summary aggregates the issue population for the manager dashboard
type Summary struct {
	TotalIssues            int             `json:"total_issues"`
	OpenIssues             int             `json:"open_issues"`
	InProgressIssues       int             `json:"in_progress_issues"`
	ResolvedIssues         int             `json:"resolved_issues"`
	ClosedIssues           int             `json:"closed_issues"`
	CriticalIssues         int             `json:"critical_issues"`
	HighPriorityIssues     int             `json:"high_priority_issues"`
	AverageResolutionHours float64         `json:"average_resolution_hours"`
	CategoryBreakdown      []CategoryCount `json:"category_breakdown"`
}

// Service drives the issue reporting workflow: report, assign, comment,
// resolve, reopen and close. Status changes go through the issue status
// machine; resolution stamps who resolved it and when.
type Service struct {
	issues domain.IssueRepository
	audit  domain.AuditSink
	clk    domain.Clock
	log    zerolog.Logger
}

// NewService creates an issue reporting service
func NewService(issues domain.IssueRepository, audit domain.AuditSink, clk domain.Clock, log zerolog.Logger) *Service {
	return &Service{
		issues: issues,
		audit:  audit,
		clk:    clk,
		log:    log,
	}
}

// Report registers a new open issue.
// Logic:
// 1. Build the entity with a fresh id and open status
// 2. Validate domain rules (title, category, priority, reporter)
// 3. Persist and audit with the issue's priority attached
func (s *Service) Report(ctx context.Context, input ReportInput) (*domain.Issue, error) {
	now := s.clk.Now()
	issue := &domain.Issue{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Priority:    input.Priority,
		Status:      domain.IssueOpen,
		ReportedBy:  input.ReportedBy,
		ReportedAt:  now,
		RequestID:   input.RequestID,
		UpdatedAt:   now,
	}

	if err := issue.Validate(); err != nil {
		return nil, err
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"issue_id":    issue.ID.String(),
		"title":       issue.Title,
		"category":    string(issue.Category),
		"priority":    string(issue.Priority),
		"reported_by": issue.ReportedBy,
	}
	if issue.RequestID != nil {
		payload["request_id"] = issue.RequestID.String()
	}
	s.audit.Record("issue.reported", payload)
	s.log.Info().Str("issue_id", issue.ID.String()).
		Str("category", string(issue.Category)).
		Str("priority", string(issue.Priority)).
		Msg("issue reported")

	return issue, nil
}

// Get retrieves a single issue by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return s.issues.GetByID(ctx, id)
}

// List retrieves issues matching the filter, newest first
func (s *Service) List(ctx context.Context, filter domain.IssueFilter) ([]*domain.Issue, error) {
	return s.issues.List(ctx, filter)
}

// Assign hands an issue to someone and moves it to in-progress when it is
// still open
func (s *Service) Assign(ctx context.Context, id uuid.UUID, assignee string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	issue.AssignedTo = assignee
	if issue.Status == domain.IssueOpen {
		if err := issue.Transition(domain.IssueInProgress); err != nil {
			return nil, err
		}
	}
	issue.UpdatedAt = s.clk.Now()

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, err
	}

	s.audit.Record("issue.assigned", map[string]any{
		"issue_id":    id.String(),
		"assigned_to": assignee,
	})
	return issue, nil
}

// Resolve marks an issue resolved, stamping who resolved it, when, and how
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, resolver, resolution string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := issue.Transition(domain.IssueResolved); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	issue.ResolvedBy = resolver
	issue.ResolvedAt = &now
	issue.Resolution = resolution
	issue.UpdatedAt = now

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, err
	}

	s.audit.Record("issue.resolved", map[string]any{
		"issue_id":    id.String(),
		"resolved_by": resolver,
		"resolution":  resolution,
	})
	s.log.Info().Str("issue_id", id.String()).Str("resolved_by", resolver).Msg("issue resolved")

	return issue, nil
}

// Reopen puts a resolved or in-progress issue back to open, clearing the
// resolution stamp
func (s *Service) Reopen(ctx context.Context, id uuid.UUID, actor string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := issue.Transition(domain.IssueOpen); err != nil {
		return nil, err
	}

	issue.ResolvedBy = ""
	issue.ResolvedAt = nil
	issue.Resolution = ""
	issue.UpdatedAt = s.clk.Now()

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, err
	}

	s.audit.Record("issue.reopened", map[string]any{
		"issue_id": id.String(),
		"actor":    actor,
	})
	return issue, nil
}

// Close finalizes an issue. Closed issues cannot change again.
func (s *Service) Close(ctx context.Context, id uuid.UUID, actor string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := issue.Transition(domain.IssueClosed); err != nil {
		return nil, err
	}
	issue.UpdatedAt = s.clk.Now()

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, err
	}

	s.audit.Record("issue.closed", map[string]any{
		"issue_id": id.String(),
		"actor":    actor,
	})
	return issue, nil
}

// AddComment appends a remark to an issue's thread. Internal comments are
// flagged for manager-only visibility.
func (s *Service) AddComment(ctx context.Context, id uuid.UUID, author, comment string, internal bool) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	issue.Comments = append(issue.Comments, domain.IssueComment{
		ID:        uuid.New(),
		Author:    author,
		Comment:   comment,
		Internal:  internal,
		CreatedAt: now,
	})
	issue.UpdatedAt = now

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, err
	}

	s.audit.Record("issue.commented", map[string]any{
		"issue_id": id.String(),
		"author":   author,
		"internal": internal,
	})
	return issue, nil
}

// GetSummary aggregates the full issue population: per-status and
// per-priority counts, average resolution time in hours, and a category
// breakdown sorted by count
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	all, err := s.issues.List(ctx, domain.IssueFilter{})
	if err != nil {
		return nil, err
	}

	summary := &Summary{TotalIssues: len(all)}
	byCategory := make(map[domain.IssueCategory]int)
	resolvedHours := 0.0
	resolvedCount := 0

	for _, issue := range all {
		switch issue.Status {
		case domain.IssueOpen:
			summary.OpenIssues++
		case domain.IssueInProgress:
			summary.InProgressIssues++
		case domain.IssueResolved:
			summary.ResolvedIssues++
		case domain.IssueClosed:
			summary.ClosedIssues++
		}

		switch issue.Priority {
		case domain.IssuePriorityCritical:
			summary.CriticalIssues++
		case domain.IssuePriorityHigh:
			summary.HighPriorityIssues++
		}

		byCategory[issue.Category]++

		if issue.ResolvedAt != nil {
			resolvedHours += issue.ResolvedAt.Sub(issue.ReportedAt).Hours()
			resolvedCount++
		}
	}

	if resolvedCount > 0 {
		summary.AverageResolutionHours = resolvedHours / float64(resolvedCount)
	}

	summary.CategoryBreakdown = make([]CategoryCount, 0, len(byCategory))
	for category, count := range byCategory {
		summary.CategoryBreakdown = append(summary.CategoryBreakdown, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(summary.CategoryBreakdown, func(i, j int) bool {
		a, b := summary.CategoryBreakdown[i], summary.CategoryBreakdown[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})

	return summary, nil
}
