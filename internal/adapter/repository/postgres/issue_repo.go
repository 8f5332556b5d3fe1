package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

const issueColumns = `
	id, title, description, category, priority, status, reported_by,
	reported_at, assigned_to, resolved_by, resolved_at, resolution,
	request_id, comments, updated_at
`

// issueRepository implements domain.IssueRepository
type issueRepository struct {
	db *DB
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *DB) domain.IssueRepository {
	return &issueRepository{db: db}
}

// Create creates a new issue
func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	comments, err := marshalComments(issue.Comments)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		issue.ID,
		issue.Title,
		issue.Description,
		string(issue.Category),
		string(issue.Priority),
		string(issue.Status),
		issue.ReportedBy,
		issue.ReportedAt,
		issue.AssignedTo,
		issue.ResolvedBy,
		issue.ResolvedAt,
		issue.Resolution,
		issue.RequestID,
		comments,
		issue.UpdatedAt,
	)
	if err != nil {
		return &domain.RepositoryError{Op: "create issue", Err: err}
	}

	return nil
}

// GetByID retrieves an issue by its ID
func (r *issueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`

	issue, err := scanIssue(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.RepositoryError{Op: "get issue", Err: fmt.Errorf("issue %s not found: %w", id, err)}
		}
		return nil, &domain.RepositoryError{Op: "get issue", Err: err}
	}

	return issue, nil
}

// List retrieves issues matching the filter, newest first
func (r *issueRepository) List(ctx context.Context, filter domain.IssueFilter) ([]*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var (
		clauses []string
		args    []any
	)

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		clauses = append(clauses, "category = $"+strconv.Itoa(len(args)))
	}
	if filter.Priority != "" {
		args = append(args, string(filter.Priority))
		clauses = append(clauses, "priority = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		clauses = append(clauses, "(title ILIKE $"+n+" OR description ILIKE $"+n+" OR reported_by ILIKE $"+n+")")
	}

	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY reported_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "list issues", Err: err}
	}
	defer rows.Close()

	var issues []*domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "list issues", Err: err}
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "list issues", Err: err}
	}

	return issues, nil
}

// Update persists the full issue entity including its comment thread
func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	comments, err := marshalComments(issue.Comments)
	if err != nil {
		return err
	}

	query := `
		UPDATE issues SET
			title = $2, description = $3, category = $4, priority = $5,
			status = $6, assigned_to = $7, resolved_by = $8, resolved_at = $9,
			resolution = $10, comments = $11, updated_at = $12
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		issue.ID,
		issue.Title,
		issue.Description,
		string(issue.Category),
		string(issue.Priority),
		string(issue.Status),
		issue.AssignedTo,
		issue.ResolvedBy,
		issue.ResolvedAt,
		issue.Resolution,
		comments,
		issue.UpdatedAt,
	)
	if err != nil {
		return &domain.RepositoryError{Op: "update issue", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.RepositoryError{Op: "update issue", Err: err}
	}
	if affected == 0 {
		return &domain.RepositoryError{Op: "update issue", Err: fmt.Errorf("issue %s not found", issue.ID)}
	}

	return nil
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var (
		issue      domain.Issue
		category   string
		priority   string
		status     string
		resolvedAt sql.NullTime
		requestID  uuid.NullUUID
		comments   []byte
	)

	err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&category,
		&priority,
		&status,
		&issue.ReportedBy,
		&issue.ReportedAt,
		&issue.AssignedTo,
		&issue.ResolvedBy,
		&resolvedAt,
		&issue.Resolution,
		&requestID,
		&comments,
		&issue.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.Category = domain.IssueCategory(category)
	issue.Priority = domain.IssuePriority(priority)
	issue.Status = domain.IssueStatus(status)
	if resolvedAt.Valid {
		issue.ResolvedAt = &resolvedAt.Time
	}
	if requestID.Valid {
		issue.RequestID = &requestID.UUID
	}

	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &issue.Comments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issue comments: %w", err)
		}
	}

	return &issue, nil
}

func marshalComments(comments []domain.IssueComment) ([]byte, error) {
	if comments == nil {
		comments = []domain.IssueComment{}
	}
	data, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issue comments: %w", err)
	}
	return data, nil
}
