package pipeline

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/debrief-backend/internal/clients/gcp"
	"github.com/yungbote/debrief-backend/internal/jobs"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/repos"
	"github.com/yungbote/debrief-backend/internal/services"
	"github.com/yungbote/debrief-backend/internal/types"
)

// TranscribeHandler runs the first stage: audio object in the bucket goes to
// the speech provider, the result is upserted as the recording's transcript,
// and on success the debrief stage is chained.
type TranscribeHandler struct {
	log         *logger.Logger
	speech      gcp.Speech
	bucket      gcp.BucketService
	transcripts repos.TranscriptRepo
	notify      services.JobNotifier
}

func NewTranscribeHandler(baseLog *logger.Logger, speech gcp.Speech, bucket gcp.BucketService, transcriptRepo repos.TranscriptRepo, notify services.JobNotifier) *TranscribeHandler {
	return &TranscribeHandler{
		log:         baseLog.With("handler", "Transcribe"),
		speech:      speech,
		bucket:      bucket,
		transcripts: transcriptRepo,
		notify:      notify,
	}
}

func (h *TranscribeHandler) Type() string { return types.JobTypeTranscribe }

func speechConfigForMode(mode string) gcp.SpeechConfig {
	cfg := gcp.SpeechConfig{
		LanguageCode:               "en-US",
		Model:                      "latest_long",
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
	}
	// Multi-party modes get diarization so segments carry speaker labels.
	switch mode {
	case types.RecordingModeMeeting:
		cfg.EnableSpeakerDiarization = true
		cfg.MinSpeakerCount = 2
		cfg.MaxSpeakerCount = 6
	case types.RecordingModeInterview, types.RecordingModeSales:
		cfg.EnableSpeakerDiarization = true
		cfg.MinSpeakerCount = 2
		cfg.MaxSpeakerCount = 2
	}
	return cfg
}

func (h *TranscribeHandler) Run(jc *jobs.Context) error {
	jc.EnsureRecordingProcessing()

	rec, err := jc.Recordings.GetByID(jc.Ctx, nil, jc.RecordingID())
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec.ObjectKey == nil || *rec.ObjectKey == "" {
		return fmt.Errorf("recording %s has no storage object", rec.ID)
	}

	uri := h.bucket.ObjectURI(*rec.ObjectKey)
	h.log.Info("Transcribing audio", "recording_id", rec.ID, "uri", uri, "mode", rec.Mode)

	result, err := h.speech.Transcribe(jc.Ctx, uri, speechConfigForMode(rec.Mode))
	if err != nil {
		return fmt.Errorf("speech provider: %w", err)
	}

	text := result.Text
	usable := text != ""
	if !usable {
		text = types.PlaceholderTranscriptText
	}
	segments, err := json.Marshal(result.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	transcript := &types.Transcript{
		RecordingID: rec.ID,
		Text:        text,
		Segments:    datatypes.JSON(segments),
		Language:    result.Language,
		AttemptSeq:  jc.Job.AttemptSeq,
	}
	if err := h.transcripts.Upsert(jc.Ctx, nil, transcript); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}

	if result.DurationSeconds > 0 {
		if uErr := jc.Recordings.UpdateFields(jc.Ctx, nil, rec.ID,
			map[string]interface{}{"duration_seconds": result.DurationSeconds}); uErr != nil {
			h.log.Warn("Failed to store duration", "recording_id", rec.ID, "error", uErr)
		}
	}

	// The placeholder row is persisted before failing so the retry surface
	// can tell "never transcribed" from "transcribed to nothing".
	if !usable {
		return fmt.Errorf("provider returned no recognizable speech")
	}

	if err := jc.Complete(); err != nil {
		return fmt.Errorf("complete transcription job: %w", err)
	}

	// Chain the second stage. Recording status stays processing; only the
	// debrief stage advances it.
	seq, err := jc.Jobs.NextAttemptSeq(jc.Ctx, nil, rec.ID, types.JobTypeDebrief)
	if err != nil {
		return fmt.Errorf("next debrief attempt seq: %w", err)
	}
	next := &types.Job{
		RecordingID: rec.ID,
		OwnerUserID: rec.OwnerUserID,
		JobType:     types.JobTypeDebrief,
		Status:      types.JobStatusPending,
		AttemptSeq:  seq,
		Payload:     jc.Job.Payload,
	}
	if _, err := jc.Jobs.Create(jc.Ctx, nil, next); err != nil {
		return fmt.Errorf("chain debrief job: %w", err)
	}
	if h.notify != nil {
		h.notify.JobCreated(rec.OwnerUserID, next)
	}
	return nil
}
