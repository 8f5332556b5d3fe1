package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIssue() *Issue {
	return &Issue{
		ID:          uuid.New(),
		Title:       "Damaged R50 notes",
		Description: "Two torn notes found during the morning count",
		Category:    IssueDamagedNotes,
		Priority:    IssuePriorityMedium,
		Status:      IssueOpen,
		ReportedBy:  "Thandi Mokoena",
	}
}

func TestIssueValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Issue)
		wantErr string
	}{
		{"valid", func(*Issue) {}, ""},
		{"empty title", func(i *Issue) { i.Title = "" }, "title cannot be empty"},
		{"empty description", func(i *Issue) { i.Description = "" }, "description cannot be empty"},
		{"unknown category", func(i *Issue) { i.Category = "lost" }, "unknown category"},
		{"unknown priority", func(i *Issue) { i.Priority = "severe" }, "unknown priority"},
		{"empty reporter", func(i *Issue) { i.ReportedBy = "" }, "reporter cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := validIssue()
			tt.mutate(issue)

			err := issue.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCanTransitionIssue(t *testing.T) {
	allowed := []struct{ from, to IssueStatus }{
		{IssueOpen, IssueInProgress},
		{IssueOpen, IssueResolved},
		{IssueOpen, IssueClosed},
		{IssueInProgress, IssueResolved},
		{IssueInProgress, IssueOpen},
		{IssueResolved, IssueClosed},
		{IssueResolved, IssueOpen},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransitionIssue(tt.from, tt.to), "%s -> %s should be allowed", tt.from, tt.to)
	}

	denied := []struct{ from, to IssueStatus }{
		{IssueClosed, IssueOpen},
		{IssueClosed, IssueResolved},
		{IssueResolved, IssueInProgress},
	}
	for _, tt := range denied {
		assert.False(t, CanTransitionIssue(tt.from, tt.to), "%s -> %s should be denied", tt.from, tt.to)
	}
}

func TestIssueTransition_InvalidLeavesIssueUntouched(t *testing.T) {
	issue := validIssue()
	issue.Status = IssueClosed

	err := issue.Transition(IssueResolved)

	var invalid *InvalidIssueTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, IssueClosed, issue.Status)
	assert.Equal(t, issue.ID, invalid.IssueID)
}
