package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/issues"
)

type IssueHandler struct {
	Service *issues.Service
}

type reportIssueBody struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Category    string  `json:"category" binding:"required"`
	Priority    string  `json:"priority" binding:"required"`
	ReportedBy  string  `json:"reportedBy" binding:"required"`
	RequestID   *string `json:"requestId"`
}

type assignIssueBody struct {
	AssignedTo string `json:"assignedTo" binding:"required"`
}

type resolveIssueBody struct {
	ResolvedBy string `json:"resolvedBy" binding:"required"`
	Resolution string `json:"resolution" binding:"required"`
}

type issueActorBody struct {
	Actor string `json:"actor" binding:"required"`
}

type issueCommentBody struct {
	Author   string `json:"author" binding:"required"`
	Comment  string `json:"comment" binding:"required"`
	Internal bool   `json:"internal"`
}

// Report registers a new issue
func (h *IssueHandler) Report(c *gin.Context) {
	var body reportIssueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := issues.ReportInput{
		Title:       body.Title,
		Description: body.Description,
		Category:    domain.IssueCategory(body.Category),
		Priority:    domain.IssuePriority(body.Priority),
		ReportedBy:  body.ReportedBy,
	}
	if body.RequestID != nil {
		requestID, err := uuid.Parse(*body.RequestID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}
		input.RequestID = &requestID
	}

	issue, err := h.Service.Report(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// Get retrieves one issue
func (h *IssueHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	issue, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// List lists issues, optionally filtered by status, category, priority or a
// search term
func (h *IssueHandler) List(c *gin.Context) {
	filter := domain.IssueFilter{
		Status:   domain.IssueStatus(c.Query("status")),
		Category: domain.IssueCategory(c.Query("category")),
		Priority: domain.IssuePriority(c.Query("priority")),
		Search:   c.Query("search"),
	}

	list, err := h.Service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// Summary aggregates the issue population
func (h *IssueHandler) Summary(c *gin.Context) {
	summary, err := h.Service.GetSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Assign hands an issue to someone
func (h *IssueHandler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body assignIssueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.Service.Assign(c.Request.Context(), id, body.AssignedTo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// Resolve marks an issue resolved
func (h *IssueHandler) Resolve(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body resolveIssueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.Service.Resolve(c.Request.Context(), id, body.ResolvedBy, body.Resolution)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// Reopen puts a resolved issue back to open
func (h *IssueHandler) Reopen(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body issueActorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.Service.Reopen(c.Request.Context(), id, body.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// Close finalizes an issue
func (h *IssueHandler) Close(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body issueActorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.Service.Close(c.Request.Context(), id, body.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// AddComment appends a comment to an issue's thread
func (h *IssueHandler) AddComment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body issueCommentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.Service.AddComment(c.Request.Context(), id, body.Author, body.Comment, body.Internal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}
