package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/inventory"
)

type InventoryHandler struct {
	Service *inventory.Service
}

type stockChangeBody struct {
	Series       string `json:"series" binding:"required"`
	Denomination int    `json:"denomination" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,min=1"`
	Reason       string `json:"reason" binding:"required"`
	Actor        string `json:"actor" binding:"required"`
}

// Summary returns the full vault stock picture
func (h *InventoryHandler) Summary(c *gin.Context) {
	summary, err := h.Service.GetSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Movements returns the most recent stock movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := h.Service.Movements(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, movements)
}

// AddCash records a cash delivery
func (h *InventoryHandler) AddCash(c *gin.Context) {
	var body stockChangeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.AddCash(c.Request.Context(),
		domain.NoteSeries(body.Series), domain.Denomination(body.Denomination),
		body.Quantity, body.Reason, body.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// RemoveCash records a manual cash removal
func (h *InventoryHandler) RemoveCash(c *gin.Context) {
	var body stockChangeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.RemoveCash(c.Request.Context(),
		domain.NoteSeries(body.Series), domain.Denomination(body.Denomination),
		body.Quantity, body.Reason, body.Actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
