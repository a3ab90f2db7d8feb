package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/app"
	"github.com/blackdown/video-downloader/internal/domain"
)

// JobHandler handles queue-related HTTP requests
type JobHandler struct {
	scheduler   *app.Scheduler
	defaultOpts domain.DownloadOptions
	logger      *zap.Logger
}

// NewJobHandler creates a new job handler. defaultOpts carries the
// configured output directory, cookie identity and mode flags applied
// when a request does not override them.
func NewJobHandler(scheduler *app.Scheduler, defaultOpts domain.DownloadOptions, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		scheduler:   scheduler,
		defaultOpts: defaultOpts,
		logger:      logger,
	}
}

// AddJobRequest represents a request to queue one or more URLs
type AddJobRequest struct {
	URL      string   `json:"url"`
	URLs     []string `json:"urls"`
	Password string   `json:"password,omitempty"`
	Filename string   `json:"filename,omitempty"`
}

// AddJob handles POST /api/v1/jobs
func (h *JobHandler) AddJob(c *gin.Context) {
	var req AddJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URL == "" && len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url or urls is required"})
		return
	}

	opts := h.defaultOpts
	opts.Password = req.Password
	opts.Filename = req.Filename

	if len(req.URLs) > 0 {
		// Batch submissions never carry a custom filename: every job
		// would overwrite the previous one
		opts.Filename = ""
		jobs, err := h.scheduler.AddBatch(req.URLs, opts)
		if err != nil {
			h.logger.Error("failed to add batch", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, jobs)
		return
	}

	job, err := h.scheduler.Add(req.URL, opts)
	if err != nil {
		h.logger.Error("failed to add job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job := h.scheduler.Get(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.scheduler.List()
	if status := c.Query("status"); status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	c.JSON(http.StatusOK, jobs)
}

// GetStats handles GET /api/v1/jobs/stats
func (h *JobHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Stats())
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.scheduler.Cancel(id); err != nil {
		h.logger.Error("failed to cancel job", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// RequeueJobRequest optionally supplies a password for the retry
type RequeueJobRequest struct {
	Password string `json:"password,omitempty"`
}

// RequeueJob handles POST /api/v1/jobs/:id/requeue
func (h *JobHandler) RequeueJob(c *gin.Context) {
	id := c.Param("id")

	var req RequeueJobRequest
	_ = c.ShouldBindJSON(&req)

	opts := h.defaultOpts
	opts.Password = req.Password

	if err := h.scheduler.Requeue(id, opts); err != nil {
		h.logger.Error("failed to requeue job", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job requeued"})
}

// DeleteJob handles DELETE /api/v1/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.scheduler.Remove(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job removed"})
}

// ClearCompleted handles POST /api/v1/jobs/clear-completed
func (h *JobHandler) ClearCompleted(c *gin.Context) {
	removed := h.scheduler.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// PauseQueue handles POST /api/v1/queue/pause
func (h *JobHandler) PauseQueue(c *gin.Context) {
	h.scheduler.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// ResumeQueue handles POST /api/v1/queue/resume
func (h *JobHandler) ResumeQueue(c *gin.Context) {
	h.scheduler.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
