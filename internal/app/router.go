package app

import (
	"github.com/gin-gonic/gin"

	httpx "github.com/yungbote/debrief-backend/internal/http"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, h Handlers, mw Middleware) *gin.Engine {
	log.Info("Wiring router...")
	return httpx.NewRouter(httpx.RouterConfig{
		Log:              log,
		AuthMiddleware:   mw.Auth,
		RecordingHandler: h.Recording,
		JobHandler:       h.Job,
		HealthHandler:    h.Health,
	})
}
