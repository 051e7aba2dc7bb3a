package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RecordingStatusPending    = "pending"
	RecordingStatusUploaded   = "uploaded"
	RecordingStatusProcessing = "processing"
	RecordingStatusComplete   = "complete"
	RecordingStatusFailed     = "failed"
)

const (
	RecordingModeGeneral   = "general"
	RecordingModeSales     = "sales"
	RecordingModeInterview = "interview"
	RecordingModeMeeting   = "meeting"
)

func ValidRecordingMode(mode string) bool {
	switch mode {
	case RecordingModeGeneral, RecordingModeSales, RecordingModeInterview, RecordingModeMeeting:
		return true
	default:
		return false
	}
}

type Recording struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Title           string     `gorm:"column:title;not null" json:"title"`
	Mode            string     `gorm:"column:mode;not null" json:"mode"`
	Status          string     `gorm:"column:status;not null;index" json:"status"`
	ObjectKey       *string    `gorm:"column:object_key" json:"object_key,omitempty"`
	Filename        string     `gorm:"column:filename" json:"filename,omitempty"`
	MimeType        string     `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes       int64      `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	DurationSeconds *float64   `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (Recording) TableName() string { return "recording" }
