package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DebriefSection struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	OrderIndex int    `json:"order_index"`
}

// Debrief is the second-stage artifact. At most one live row per recording;
// retries overwrite it wholesale.
type Debrief struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RecordingID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"recording_id"`
	Text        string         `gorm:"column:text;not null" json:"text"`
	Sections    datatypes.JSON `gorm:"column:sections;type:jsonb" json:"sections,omitempty"`
	AttemptSeq  int            `gorm:"column:attempt_seq;not null;default:1" json:"attempt_seq"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Debrief) TableName() string { return "debrief" }
