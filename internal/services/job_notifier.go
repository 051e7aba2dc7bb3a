package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/debrief-backend/internal/clients/redis"
	"github.com/yungbote/debrief-backend/internal/types"
)

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.Job)
	JobFailed(userID uuid.UUID, job *types.Job, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.Job)
}

type jobNotifier struct {
	bus redis.EventBus
}

// NewJobNotifier publishes job lifecycle events onto the redis bus. A nil
// bus yields a no-op notifier (the pipeline never depends on it).
func NewJobNotifier(bus redis.EventBus) JobNotifier {
	return &jobNotifier{bus: bus}
}

func (n *jobNotifier) publish(userID uuid.UUID, kind string, data map[string]any) {
	if n == nil || n.bus == nil {
		return
	}
	_ = n.bus.Publish(context.Background(), redis.Event{
		Channel: userID.String(),
		Kind:    kind,
		Data:    data,
	})
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.Job) {
	n.publish(userID, "job_created", map[string]any{
		"job_id":       job.ID,
		"job_type":     job.JobType,
		"recording_id": job.RecordingID,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.Job, stage string, errorMessage string) {
	n.publish(userID, "job_failed", map[string]any{
		"job_id":       job.ID,
		"job_type":     job.JobType,
		"recording_id": job.RecordingID,
		"stage":        stage,
		"error":        errorMessage,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.Job) {
	n.publish(userID, "job_done", map[string]any{
		"job_id":       job.ID,
		"job_type":     job.JobType,
		"recording_id": job.RecordingID,
	})
}
