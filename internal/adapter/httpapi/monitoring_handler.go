package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cashdesk/cashdesk-backend/internal/usecase/monitor"
)

type MonitoringHandler struct {
	Scheduler *monitor.Scheduler
}

// Status reports the scheduler's tracking state
func (h *MonitoringHandler) Status(c *gin.Context) {
	status := h.Scheduler.CurrentStatus()
	c.JSON(http.StatusOK, gin.H{
		"running":                status.Running,
		"alert_count":            status.AlertCount,
		"tracked_warning_stages": status.TrackedWarningStages,
		"tracked_cancellations":  status.TrackedCancellations,
	})
}

// Evaluate runs a synchronous evaluation tick
func (h *MonitoringHandler) Evaluate(c *gin.Context) {
	h.Scheduler.ForceEvaluate()
	c.JSON(http.StatusOK, gin.H{"alerts": h.Scheduler.CurrentAlerts()})
}

// Alerts lists the current overdue alerts
func (h *MonitoringHandler) Alerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.Scheduler.CurrentAlerts())
}

// Mute silences one alert
func (h *MonitoringHandler) Mute(c *gin.Context) {
	h.Scheduler.MuteAlert(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "muted"})
}

// Unmute re-enables one alert
func (h *MonitoringHandler) Unmute(c *gin.Context) {
	h.Scheduler.UnmuteAlert(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "unmuted"})
}

// MuteAll silences every current alert
func (h *MonitoringHandler) MuteAll(c *gin.Context) {
	h.Scheduler.MuteAll()
	c.JSON(http.StatusOK, gin.H{"status": "muted"})
}

// UnmuteAll clears all mutes
func (h *MonitoringHandler) UnmuteAll(c *gin.Context) {
	h.Scheduler.UnmuteAll()
	c.JSON(http.StatusOK, gin.H{"status": "unmuted"})
}
