package pipeline

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/debrief-backend/internal/jobs"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/repos"
	"github.com/yungbote/debrief-backend/internal/services"
	"github.com/yungbote/debrief-backend/internal/types"
)

// DebriefHandler runs the second stage: the stored transcript goes to the
// summary provider and the result is upserted as the recording's debrief.
// Only this stage moves a recording to complete.
type DebriefHandler struct {
	log         *logger.Logger
	summaries   services.SummaryProvider
	transcripts repos.TranscriptRepo
	debriefs    repos.DebriefRepo
}

func NewDebriefHandler(baseLog *logger.Logger, summaries services.SummaryProvider, transcriptRepo repos.TranscriptRepo, debriefRepo repos.DebriefRepo) *DebriefHandler {
	return &DebriefHandler{
		log:         baseLog.With("handler", "Debrief"),
		summaries:   summaries,
		transcripts: transcriptRepo,
		debriefs:    debriefRepo,
	}
}

func (h *DebriefHandler) Type() string { return types.JobTypeDebrief }

func (h *DebriefHandler) Run(jc *jobs.Context) error {
	jc.EnsureRecordingProcessing()

	rec, err := jc.Recordings.GetByID(jc.Ctx, nil, jc.RecordingID())
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	transcript, err := h.transcripts.GetByRecordingID(jc.Ctx, nil, rec.ID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if !transcript.Usable() {
		return fmt.Errorf("recording %s has no usable transcript", rec.ID)
	}

	h.log.Info("Generating debrief", "recording_id", rec.ID, "mode", rec.Mode)
	result, err := h.summaries.GenerateDebrief(jc.Ctx, transcript.Text, rec.Mode, rec.Title)
	if err != nil {
		return fmt.Errorf("summary provider: %w", err)
	}

	sections, err := json.Marshal(result.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	debrief := &types.Debrief{
		RecordingID: rec.ID,
		Text:        result.Text,
		Sections:    datatypes.JSON(sections),
		AttemptSeq:  jc.Job.AttemptSeq,
	}
	if err := h.debriefs.Upsert(jc.Ctx, nil, debrief); err != nil {
		return fmt.Errorf("persist debrief: %w", err)
	}

	if err := jc.Complete(); err != nil {
		return fmt.Errorf("complete debrief job: %w", err)
	}

	if _, err := jc.Recordings.UpdateFieldsIfStatus(jc.Ctx, nil, rec.ID,
		[]string{types.RecordingStatusProcessing},
		map[string]interface{}{"status": types.RecordingStatusComplete}); err != nil {
		return fmt.Errorf("mark recording complete: %w", err)
	}
	return nil
}
