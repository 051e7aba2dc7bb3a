package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/types"
)

type TranscriptRepo interface {
	// Upsert creates or wholesale-overwrites the transcript for a recording.
	// Writes from a superseded attempt (lower attempt_seq than the stored
	// row) are silently dropped.
	Upsert(ctx context.Context, tx *gorm.DB, t *types.Transcript) error
	GetByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) (*types.Transcript, error)
	DeleteByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) error
}

type transcriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptRepo {
	return &transcriptRepo{
		db:  db,
		log: baseLog.With("repo", "TranscriptRepo"),
	}
}

func (r *transcriptRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *transcriptRepo) Upsert(ctx context.Context, tx *gorm.DB, t *types.Transcript) error {
	if t == nil || t.RecordingID == uuid.Nil {
		return errors.New("transcript requires a recording id")
	}
	return r.handle(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "recording_id"}},
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("excluded.attempt_seq >= transcript.attempt_seq"),
			}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "segments", "language", "attempt_seq", "updated_at"}),
		}).
		Create(t).Error
}

func (r *transcriptRepo) GetByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) (*types.Transcript, error) {
	if recordingID == uuid.Nil {
		return nil, nil
	}
	var t types.Transcript
	err := r.handle(tx).WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Limit(1).
		Find(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *transcriptRepo) DeleteByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) error {
	if recordingID == uuid.Nil {
		return nil
	}
	return r.handle(tx).WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Delete(&types.Transcript{}).Error
}
