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

type DebriefRepo interface {
	// Upsert creates or wholesale-overwrites the debrief for a recording,
	// dropping writes from superseded attempts.
	Upsert(ctx context.Context, tx *gorm.DB, d *types.Debrief) error
	GetByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) (*types.Debrief, error)
	DeleteByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) error
}

type debriefRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDebriefRepo(db *gorm.DB, baseLog *logger.Logger) DebriefRepo {
	return &debriefRepo{
		db:  db,
		log: baseLog.With("repo", "DebriefRepo"),
	}
}

func (r *debriefRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *debriefRepo) Upsert(ctx context.Context, tx *gorm.DB, d *types.Debrief) error {
	if d == nil || d.RecordingID == uuid.Nil {
		return errors.New("debrief requires a recording id")
	}
	return r.handle(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "recording_id"}},
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("excluded.attempt_seq >= debrief.attempt_seq"),
			}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "sections", "attempt_seq", "updated_at"}),
		}).
		Create(d).Error
}

func (r *debriefRepo) GetByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) (*types.Debrief, error) {
	if recordingID == uuid.Nil {
		return nil, nil
	}
	var d types.Debrief
	err := r.handle(tx).WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Limit(1).
		Find(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == uuid.Nil {
		return nil, nil
	}
	return &d, nil
}

func (r *debriefRepo) DeleteByRecordingID(ctx context.Context, tx *gorm.DB, recordingID uuid.UUID) error {
	if recordingID == uuid.Nil {
		return nil
	}
	return r.handle(tx).WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Delete(&types.Debrief{}).Error
}
