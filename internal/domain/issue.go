package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// IssueCategory classifies what kind of problem a teller is reporting
type IssueCategory string

const (
	IssueMissingNotes         IssueCategory = "missing_notes"
	IssueDamagedNotes         IssueCategory = "damaged_notes"
	IssueCounterfeitNotes     IssueCategory = "counterfeit_notes"
	IssueCountingDiscrepancy  IssueCategory = "counting_discrepancy"
	IssueEquipmentMalfunction IssueCategory = "equipment_malfunction"
	IssueSecurityConcern      IssueCategory = "security_concern"
	IssueProcessViolation     IssueCategory = "process_violation"
	IssueOther                IssueCategory = "other"
)

// Valid reports whether the category is one of the known kinds
func (c IssueCategory) Valid() bool {
	switch c {
	case IssueMissingNotes, IssueDamagedNotes, IssueCounterfeitNotes,
		IssueCountingDiscrepancy, IssueEquipmentMalfunction,
		IssueSecurityConcern, IssueProcessViolation, IssueOther:
		return true
	}
	return false
}

// IssuePriority grades how urgently an issue needs attention
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "low"
	IssuePriorityMedium   IssuePriority = "medium"
	IssuePriorityHigh     IssuePriority = "high"
	IssuePriorityCritical IssuePriority = "critical"
)

// Valid reports whether the priority is one of the known tiers
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical:
		return true
	}
	return false
}

// IssueStatus represents the lifecycle state of a reported issue
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
	IssueClosed     IssueStatus = "closed"
)

// allowedIssueTransitions encodes the issue status machine:
// Open -> InProgress -> Resolved -> Closed, with Resolved reachable
// straight from Open and reopening permitted until the issue is closed.
var allowedIssueTransitions = map[IssueStatus][]IssueStatus{
	IssueOpen:       {IssueInProgress, IssueResolved, IssueClosed},
	IssueInProgress: {IssueResolved, IssueOpen, IssueClosed},
	IssueResolved:   {IssueClosed, IssueOpen},
}

// CanTransitionIssue reports whether an issue status change from -> to is permitted
func CanTransitionIssue(from, to IssueStatus) bool {
	for _, next := range allowedIssueTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IssueComment is one remark on an issue's thread. Internal comments are
// visible to managers only.
type IssueComment struct {
	ID        uuid.UUID `json:"id"`
	Author    string    `json:"author"`
	Comment   string    `json:"comment"`
	Internal  bool      `json:"internal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue represents a reported incident around cash handling — counterfeit
// or damaged notes, counting discrepancies and the like — optionally linked
// to the cash request it occurred on.
type Issue struct {
	ID          uuid.UUID
	Title       string
	Description string
	Category    IssueCategory
	Priority    IssuePriority
	Status      IssueStatus
	ReportedBy  string
	ReportedAt  time.Time
	AssignedTo  string
	ResolvedBy  string
	ResolvedAt  *time.Time
	Resolution  string
	RequestID   *uuid.UUID
	Comments    []IssueComment
	UpdatedAt   time.Time
}

// Validate ensures the issue adheres to domain rules
func (i *Issue) Validate() error {
	if i.Title == "" {
		return errors.New("issue title cannot be empty")
	}
	if i.Description == "" {
		return errors.New("issue description cannot be empty")
	}
	if !i.Category.Valid() {
		return errors.New("issue has an unknown category")
	}
	if !i.Priority.Valid() {
		return errors.New("issue has an unknown priority")
	}
	if i.ReportedBy == "" {
		return errors.New("issue reporter cannot be empty")
	}
	return nil
}

// Transition moves the issue to a new status, enforcing the status machine.
// Returns *InvalidIssueTransitionError when the change is not permitted;
// the issue is left untouched in that case.
func (i *Issue) Transition(to IssueStatus) error {
	if !CanTransitionIssue(i.Status, to) {
		return &InvalidIssueTransitionError{IssueID: i.ID, From: i.Status, To: to}
	}
	i.Status = to
	return nil
}

// IssueFilter narrows an issue listing. Zero values mean "no constraint".
type IssueFilter struct {
	Status   IssueStatus
	Category IssueCategory
	Priority IssuePriority
	Search   string
}
