package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blackdown/video-downloader/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	scheduler *app.Scheduler
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(scheduler *app.Scheduler) *HealthHandler {
	return &HealthHandler{scheduler: scheduler}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running bool `json:"running"`
		Paused  bool `json:"paused"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	response.Queue.Running = h.scheduler.IsRunning()
	response.Queue.Paused = h.scheduler.IsPaused()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.scheduler.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "scheduler not running",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
