package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/api/handlers"
	"github.com/blackdown/video-downloader/api/middleware"
	"github.com/blackdown/video-downloader/internal/app"
	"github.com/blackdown/video-downloader/internal/domain"
)

// SetupRouter sets up the HTTP router exposing the queue
func SetupRouter(scheduler *app.Scheduler, defaultOpts domain.DownloadOptions, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(scheduler)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		jobHandler := handlers.NewJobHandler(scheduler, defaultOpts, log)
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.AddJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/stats", jobHandler.GetStats)
			jobs.POST("/clear-completed", jobHandler.ClearCompleted)
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.POST("/:id/cancel", jobHandler.CancelJob)
			jobs.POST("/:id/requeue", jobHandler.RequeueJob)
			jobs.DELETE("/:id", jobHandler.DeleteJob)
		}

		queue := v1.Group("/queue")
		{
			queue.POST("/pause", jobHandler.PauseQueue)
			queue.POST("/resume", jobHandler.ResumeQueue)
		}
	}

	return router
}
