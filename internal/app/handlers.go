package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/debrief-backend/internal/http/handlers"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

type Handlers struct {
	Recording *httpH.RecordingHandler
	Job       *httpH.JobHandler
	Health    *httpH.HealthHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Recording: httpH.NewRecordingHandler(s.Recording),
		Job:       httpH.NewJobHandler(s.Job),
		Health:    httpH.NewHealthHandler(db),
	}
}
