package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/internal/services"
)

// HealthHandler provides health check endpoints.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Queue mode
	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	status := 200
	if overall != "healthy" {
		status = 503
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"service":  "tokengate",
		"database": dbStatus,
		"queue":    queueMode,
	})
}
