package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/platform/apierr"
	"github.com/yungbote/debrief-backend/internal/platform/ctxutil"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/repos"
	"github.com/yungbote/debrief-backend/internal/types"
)

type JobService interface {
	GetByIDForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.Job, error)
}

type jobService struct {
	db   *gorm.DB
	log  *logger.Logger
	jobs repos.JobRepo
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, jobRepo repos.JobRepo) JobService {
	return &jobService{
		db:   db,
		log:  baseLog.With("service", "JobService"),
		jobs: jobRepo,
	}
}

func (s *jobService) GetByIDForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.Job, error) {
	ctx = ctxutil.Default(ctx)
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		if err == repos.ErrNotFound {
			return nil, apierr.NotFound("JOB_NOT_FOUND", err)
		}
		return nil, err
	}
	if job.OwnerUserID != ownerUserID {
		return nil, apierr.NotFound("JOB_NOT_FOUND", fmt.Errorf("job does not belong to caller"))
	}
	return job, nil
}
