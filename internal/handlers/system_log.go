package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tokengate/internal/services"
	"gorm.io/gorm"
)

// SystemLogHandler exposes the auth audit trail (admin only).
type SystemLogHandler struct {
	service *services.SystemLogService
}

func NewSystemLogHandler(db *gorm.DB) *SystemLogHandler {
	return &SystemLogHandler{service: services.NewSystemLogService(db)}
}

// List returns paginated audit entries.
// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	req := services.SystemLogListRequest{Page: 1, PageSize: 20}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, total, err := h.service.List(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": logs,
		"total": total,
		"page":  req.Page,
	})
}
