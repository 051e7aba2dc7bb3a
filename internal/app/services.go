package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/jobs"
	"github.com/yungbote/debrief-backend/internal/jobs/pipeline"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/services"
)

type Services struct {
	Auth      services.AuthService
	Recording services.RecordingService
	Job       services.JobService

	JobNotifier services.JobNotifier
	Summaries   services.SummaryProvider

	JobRegistry *jobs.Registry
	JobWorker   *jobs.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")

	auth, err := services.NewAuthService(log, cfg.JWTSecretKey)
	if err != nil {
		return Services{}, err
	}
	notifier := services.NewJobNotifier(c.EventBus)
	summaries, err := services.NewSummaryProvider(log)
	if err != nil {
		return Services{}, err
	}

	recording := services.NewRecordingService(db, log, r.Recording, r.Job, r.Transcript, r.Debrief, c.Bucket, notifier)
	jobService := services.NewJobService(db, log, r.Job)

	registry := jobs.NewRegistry()
	if err := registry.Register(pipeline.NewTranscribeHandler(log, c.Speech, c.Bucket, r.Transcript, notifier)); err != nil {
		return Services{}, err
	}
	if err := registry.Register(pipeline.NewDebriefHandler(log, summaries, r.Transcript, r.Debrief)); err != nil {
		return Services{}, err
	}
	worker := jobs.NewWorker(db, log, r.Job, r.Recording, registry, notifier)

	return Services{
		Auth:        auth,
		Recording:   recording,
		Job:         jobService,
		JobNotifier: notifier,
		Summaries:   summaries,
		JobRegistry: registry,
		JobWorker:   worker,
	}, nil
}
