package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/requests"
)

type RequestHandler struct {
	Service *requests.Service
}

type bankNoteLineRequest struct {
	Denomination int `json:"denomination" binding:"required"`
	Quantity     int `json:"quantity" binding:"required,min=1"`
}

type createRequestBody struct {
	RequesterID   string                `json:"requesterId"`
	RequesterName string                `json:"requesterName" binding:"required"`
	Department    string                `json:"department"`
	BankNotes     []bankNoteLineRequest `json:"bankNotes" binding:"required,min=1"`
	Comments      string                `json:"comments"`
}

type approveRequestBody struct {
	Approver           string    `json:"approver" binding:"required"`
	ExpectedReturnDate time.Time `json:"expectedReturnDate" binding:"required"`
}

type issueRequestBody struct {
	Issuer      string `json:"issuer" binding:"required"`
	CashCounted bool   `json:"cashCounted"`
}

type returnRequestBody struct {
	ReceivedBy       string     `json:"receivedBy" binding:"required"`
	CashCounted      bool       `json:"cashCounted"`
	Comments         string     `json:"comments"`
	ActualReturnDate *time.Time `json:"actualReturnDate"`
}

type actorReasonBody struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

// Create registers a new pending cash request
func (h *RequestHandler) Create(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := make([]domain.BankNoteLine, 0, len(body.BankNotes))
	for _, line := range body.BankNotes {
		lines = append(lines, domain.BankNoteLine{
			Denomination: domain.Denomination(line.Denomination),
			Quantity:     line.Quantity,
		})
	}

	request, err := h.Service.Create(c.Request.Context(), requests.CreateInput{
		RequesterID:   body.RequesterID,
		RequesterName: body.RequesterName,
		Department:    body.Department,
		BankNotes:     lines,
		Comments:      body.Comments,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// Get retrieves one request
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	request, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// ListActive lists all approved and issued requests
func (h *RequestHandler) ListActive(c *gin.Context) {
	active, err := h.Service.Active(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, active)
}

// Approve approves a pending request, reserving stock
func (h *RequestHandler) Approve(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body approveRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.Service.Approve(c.Request.Context(), id, body.Approver, body.ExpectedReturnDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// Issue hands the reserved cash over
func (h *RequestHandler) Issue(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body issueRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.Service.Issue(c.Request.Context(), id, body.Issuer, body.CashCounted)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// Return records issued cash coming back
func (h *RequestHandler) Return(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body returnRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := requests.ReturnInput{
		ReceivedBy:  body.ReceivedBy,
		CashCounted: body.CashCounted,
		Comments:    body.Comments,
	}
	if body.ActualReturnDate != nil {
		input.ActualReturnDate = *body.ActualReturnDate
	}

	request, err := h.Service.Return(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// Complete closes a returned request
func (h *RequestHandler) Complete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body actorReasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.Service.Complete(c.Request.Context(), id, body.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// Cancel cancels a request
func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body actorReasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.Service.Cancel(c.Request.Context(), id, body.Actor, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// Reject declines a request
func (h *RequestHandler) Reject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var body actorReasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.Service.Reject(c.Request.Context(), id, body.Actor, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return uuid.Nil, false
	}
	return id, true
}
