package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PlaceholderTranscriptText marks a transcript produced without usable
// provider output. A recording whose transcript carries it cannot take a
// debrief-only retry.
const PlaceholderTranscriptText = "[no speech recognized]"

type TranscriptSegment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
}

// Transcript is the first-stage artifact. At most one live row per recording;
// retries overwrite it wholesale.
type Transcript struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RecordingID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"recording_id"`
	Text        string         `gorm:"column:text;not null" json:"text"`
	Segments    datatypes.JSON `gorm:"column:segments;type:jsonb" json:"segments,omitempty"`
	Language    string         `gorm:"column:language" json:"language,omitempty"`
	AttemptSeq  int            `gorm:"column:attempt_seq;not null;default:1" json:"attempt_seq"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Transcript) TableName() string { return "transcript" }

// Usable reports whether the transcript can feed debrief generation.
func (t *Transcript) Usable() bool {
	if t == nil {
		return false
	}
	return t.Text != "" && t.Text != PlaceholderTranscriptText
}
