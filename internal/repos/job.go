package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/types"
)

// ErrInvalidTransition is returned when a ledger transition is requested
// outside pending->running->{complete,failed}.
var ErrInvalidTransition = errors.New("invalid job transition")

// Provider error text is truncated before it hits the ledger.
const maxErrorLen = 1024

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error)
	ListByRecording(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) ([]*types.Job, error)
	GetLatestByRecordingAndType(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID, jobType string) (*types.Job, error)
	// NextAttemptSeq returns the monotonic attempt stamp for a fresh job row
	// of the given type. Artifact upserts use it to reject superseded writes.
	NextAttemptSeq(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID, jobType string) (int, error)
	// Transition enforces the ledger contract: pending->running stamps
	// started_at, running->{complete,failed} stamps completed_at; failed also
	// records the (truncated) error. Anything else is ErrInvalidTransition.
	Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, errMsg string) error
	// ClaimNextRunnable picks one runnable job and marks it running. This is
	// queue machinery, separate from the Transition ledger path: it also
	// re-claims failed jobs under the retry budget and stale running jobs.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobType string, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.Job, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
	if job == nil {
		return nil, errors.New("nil job")
	}
	if job.Status == "" {
		job.Status = types.JobStatusPending
	}
	if err := r.handle(tx).WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	err := r.handle(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) ListByRecording(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) ([]*types.Job, error) {
	var out []*types.Job
	if recordingID == uuid.Nil {
		return out, nil
	}
	err := r.handle(tx).WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) GetLatestByRecordingAndType(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID, jobType string) (*types.Job, error) {
	if recordingID == uuid.Nil || jobType == "" {
		return nil, nil
	}
	var job types.Job
	err := r.handle(tx).WithContext(ctx).
		Where("recording_id = ? AND job_type = ?", recordingID, jobType).
		Order("attempt_seq DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) NextAttemptSeq(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID, jobType string) (int, error) {
	var maxSeq int
	err := r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("recording_id = ? AND job_type = ?", recordingID, jobType).
		Select("COALESCE(MAX(attempt_seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

func legalFrom(to string) ([]string, bool) {
	switch to {
	case types.JobStatusRunning:
		return []string{types.JobStatusPending}, true
	case types.JobStatusComplete, types.JobStatusFailed:
		return []string{types.JobStatusRunning}, true
	default:
		return nil, false
	}
}

func (r *jobRepo) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, errMsg string) error {
	if id == uuid.Nil {
		return fmt.Errorf("job id required")
	}
	from, ok := legalFrom(status)
	if !ok {
		return fmt.Errorf("%w: %q is not a reachable status", ErrInvalidTransition, status)
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case types.JobStatusRunning:
		updates["started_at"] = now
		updates["heartbeat_at"] = now
	case types.JobStatusComplete:
		updates["completed_at"] = now
		updates["error"] = ""
		updates["locked_at"] = nil
	case types.JobStatusFailed:
		if len(errMsg) > maxErrorLen {
			errMsg = errMsg[:maxErrorLen]
		}
		updates["completed_at"] = now
		updates["error"] = errMsg
		updates["last_error_at"] = now
		updates["locked_at"] = nil
	}
	res := r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var cur types.Job
		if err := r.handle(tx).WithContext(ctx).Where("id = ?", id).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, status)
	}
	return nil
}

func (r *jobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobType string, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.Job, error) {
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.Job
	err := r.handle(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.Job
		q := txx.Where("job_type = ?", jobType).Where(`
			(
				status = ?
				OR (
					status = ?
					AND attempts < ?
					AND (last_error_at IS NULL OR last_error_at < ?)
				)
				OR (
					status = ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			)
		`, types.JobStatusPending, types.JobStatusFailed, maxAttempts, retryCutoff, types.JobStatusRunning, staleCutoff).
			Order("created_at ASC")
		// SKIP LOCKED keeps concurrent claimers off the same row; the sqlite
		// driver used in tests has no row locks, so the clause is
		// postgres-only.
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		updates := map[string]interface{}{
			"status":       types.JobStatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"started_at":   now,
			"updated_at":   now,
		}
		if uErr := txx.Model(&types.Job{}).
			Where("id = ?", job.ID).
			Updates(updates).Error; uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		job.StartedAt = &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
