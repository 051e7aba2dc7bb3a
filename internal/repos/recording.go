package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/types"
)

var ErrNotFound = errors.New("record not found")

type RecordingRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rec *types.Recording) (*types.Recording, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Recording, error)
	GetByIDForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*types.Recording, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, limit int, statusFilter string) ([]*types.Recording, int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only when the row's current status
	// is one of allowedFrom. Returns false when the guard rejected the write.
	// This is the sole consistency mechanism on the recording status field.
	UpdateFieldsIfStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, allowedFrom []string, updates map[string]interface{}) (bool, error)
}

type recordingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordingRepo(db *gorm.DB, baseLog *logger.Logger) RecordingRepo {
	return &recordingRepo{
		db:  db,
		log: baseLog.With("repo", "RecordingRepo"),
	}
}

func (r *recordingRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *recordingRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.Recording) (*types.Recording, error) {
	if rec == nil {
		return nil, errors.New("nil recording")
	}
	if err := r.handle(tx).WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *recordingRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Recording, error) {
	var rec types.Recording
	err := r.handle(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepo) GetByIDForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*types.Recording, error) {
	var rec types.Recording
	err := r.handle(tx).WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, limit int, statusFilter string) ([]*types.Recording, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	q := r.handle(tx).WithContext(ctx).
		Model(&types.Recording{}).
		Where("owner_user_id = ?", ownerUserID)
	if statusFilter != "" {
		q = q.Where("status = ?", statusFilter)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Recording
	if err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *recordingRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.handle(tx).WithContext(ctx).
		Model(&types.Recording{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *recordingRepo) UpdateFieldsIfStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, allowedFrom []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(allowedFrom) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := r.handle(tx).WithContext(ctx).
		Model(&types.Recording{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
