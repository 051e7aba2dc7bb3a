package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/debrief-backend/internal/http/handlers"
	httpMW "github.com/yungbote/debrief-backend/internal/http/middleware"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	RecordingHandler *httpH.RecordingHandler
	JobHandler       *httpH.JobHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.RecordingHandler != nil {
			protected.POST("/recordings", cfg.RecordingHandler.Create)
			protected.GET("/recordings", cfg.RecordingHandler.List)
			protected.GET("/recordings/:id", cfg.RecordingHandler.Get)
			protected.POST("/recordings/:id/complete-upload", cfg.RecordingHandler.CompleteUpload)
			protected.GET("/recordings/:id/jobs", cfg.RecordingHandler.ListJobs)
			protected.POST("/recordings/:id/retry-transcription", cfg.RecordingHandler.RetryTranscription)
			protected.POST("/recordings/:id/retry-debrief", cfg.RecordingHandler.RetryDebrief)
			protected.GET("/recordings/:id/download-url", cfg.RecordingHandler.DownloadURL)
		}

		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}
