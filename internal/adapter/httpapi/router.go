package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cashdesk/cashdesk-backend/internal/adapter/notify"
	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/inventory"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/issues"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/monitor"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/requests"
)

// SetupRouter wires every HTTP endpoint
func SetupRouter(
	requestService *requests.Service,
	inventoryService *inventory.Service,
	issueService *issues.Service,
	scheduler *monitor.Scheduler,
	hub *notify.Hub,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	requestHandler := &RequestHandler{Service: requestService}
	inventoryHandler := &InventoryHandler{Service: inventoryService}
	issueHandler := &IssueHandler{Service: issueService}
	monitoringHandler := &MonitoringHandler{Scheduler: scheduler}
	webSocketHandler := &WebSocketHandler{Hub: hub}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		reqs := apiV1.Group("/requests")
		{
			reqs.POST("/", requestHandler.Create)
			reqs.GET("/active", requestHandler.ListActive)
			reqs.GET("/:id", requestHandler.Get)
			reqs.POST("/:id/approve", requestHandler.Approve)
			reqs.POST("/:id/issue", requestHandler.Issue)
			reqs.POST("/:id/return", requestHandler.Return)
			reqs.POST("/:id/complete", requestHandler.Complete)
			reqs.POST("/:id/cancel", requestHandler.Cancel)
			reqs.POST("/:id/reject", requestHandler.Reject)
		}

		inv := apiV1.Group("/inventory")
		{
			inv.GET("/summary", inventoryHandler.Summary)
			inv.GET("/movements", inventoryHandler.Movements)
			inv.POST("/add", inventoryHandler.AddCash)
			inv.POST("/remove", inventoryHandler.RemoveCash)
		}

		iss := apiV1.Group("/issues")
		{
			iss.POST("/", issueHandler.Report)
			iss.GET("/", issueHandler.List)
			iss.GET("/summary", issueHandler.Summary)
			iss.GET("/:id", issueHandler.Get)
			iss.POST("/:id/assign", issueHandler.Assign)
			iss.POST("/:id/resolve", issueHandler.Resolve)
			iss.POST("/:id/reopen", issueHandler.Reopen)
			iss.POST("/:id/close", issueHandler.Close)
			iss.POST("/:id/comments", issueHandler.AddComment)
		}

		monitoring := apiV1.Group("/monitoring")
		{
			monitoring.GET("/status", monitoringHandler.Status)
			monitoring.POST("/evaluate", monitoringHandler.Evaluate)
			monitoring.GET("/alerts", monitoringHandler.Alerts)
			monitoring.POST("/alerts/mute-all", monitoringHandler.MuteAll)
			monitoring.POST("/alerts/unmute-all", monitoringHandler.UnmuteAll)
			monitoring.POST("/alerts/:id/mute", monitoringHandler.Mute)
			monitoring.POST("/alerts/:id/unmute", monitoringHandler.Unmute)
		}
	}

	return router
}

// respondError maps domain error kinds to HTTP statuses
func respondError(c *gin.Context, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusConflict, gin.H{"error": insufficient.Error()})
		return
	}

	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusConflict, gin.H{"error": invalid.Error()})
		return
	}

	var invalidIssue *domain.InvalidIssueTransitionError
	if errors.As(err, &invalidIssue) {
		c.JSON(http.StatusConflict, gin.H{"error": invalidIssue.Error()})
		return
	}

	var repoErr *domain.RepositoryError
	if errors.As(err, &repoErr) {
		if strings.Contains(repoErr.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": repoErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": repoErr.Error()})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
