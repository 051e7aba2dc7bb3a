package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/clients/gcp"
	"github.com/yungbote/debrief-backend/internal/platform/apierr"
	"github.com/yungbote/debrief-backend/internal/platform/ctxutil"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/repos"
	"github.com/yungbote/debrief-backend/internal/types"
)

// MIME types the pipeline accepts for upload. The speech provider handles a
// wider set; this is the supported surface.
var allowedMimeTypes = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/wav":  ".wav",
	"audio/flac": ".flac",
}

type CreateRecordingInput struct {
	Title    string `json:"title"`
	Mode     string `json:"mode"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

type CreateRecordingResult struct {
	Recording *types.Recording       `json:"recording"`
	Upload    *gcp.SignedDestination `json:"upload"`
}

type RecordingDetail struct {
	Recording  *types.Recording  `json:"recording"`
	Transcript *types.Transcript `json:"transcript,omitempty"`
	Debrief    *types.Debrief    `json:"debrief,omitempty"`
	// FailedStage names the job type whose latest attempt failed, set only
	// while the recording is failed. It tells the caller which retry applies.
	FailedStage string `json:"failed_stage,omitempty"`
}

// RecordingService owns the recording lifecycle: creation with a signed
// upload slot, the upload handshake, reads, and the two manual retry
// operations. Everything that flips a recording status goes through here or
// through the job pipeline; nothing else writes the status column.
type RecordingService interface {
	Create(ctx context.Context, ownerUserID uuid.UUID, in CreateRecordingInput) (*CreateRecordingResult, error)
	CompleteUpload(ctx context.Context, ownerUserID, id uuid.UUID, sizeBytes int64) (*types.Recording, error)
	Get(ctx context.Context, ownerUserID, id uuid.UUID, includeArtifacts bool) (*RecordingDetail, error)
	List(ctx context.Context, ownerUserID uuid.UUID, page, limit int, statusFilter string) ([]*types.Recording, int64, error)
	ListJobs(ctx context.Context, ownerUserID, id uuid.UUID) ([]*types.Job, error)
	RetryTranscription(ctx context.Context, ownerUserID, id uuid.UUID) (*types.Job, error)
	RetryDebrief(ctx context.Context, ownerUserID, id uuid.UUID) (*types.Job, error)
	DownloadURL(ctx context.Context, ownerUserID, id uuid.UUID) (*gcp.SignedDestination, error)
}

type recordingService struct {
	db          *gorm.DB
	log         *logger.Logger
	recordings  repos.RecordingRepo
	jobs        repos.JobRepo
	transcripts repos.TranscriptRepo
	debriefs    repos.DebriefRepo
	bucket      gcp.BucketService
	notify      JobNotifier
}

func NewRecordingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	recRepo repos.RecordingRepo,
	jobRepo repos.JobRepo,
	transcriptRepo repos.TranscriptRepo,
	debriefRepo repos.DebriefRepo,
	bucket gcp.BucketService,
	notify JobNotifier,
) RecordingService {
	return &recordingService{
		db:          db,
		log:         baseLog.With("service", "RecordingService"),
		recordings:  recRepo,
		jobs:        jobRepo,
		transcripts: transcriptRepo,
		debriefs:    debriefRepo,
		bucket:      bucket,
		notify:      notify,
	}
}

func (s *recordingService) Create(ctx context.Context, ownerUserID uuid.UUID, in CreateRecordingInput) (*CreateRecordingResult, error) {
	ctx = ctxutil.Default(ctx)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apierr.BadRequest("TITLE_REQUIRED", fmt.Errorf("title is required"))
	}
	mode := strings.TrimSpace(in.Mode)
	if mode == "" {
		mode = types.RecordingModeGeneral
	}
	if !types.ValidRecordingMode(mode) {
		return nil, apierr.BadRequest("INVALID_MODE", fmt.Errorf("unknown recording mode %q", mode))
	}
	ext, ok := allowedMimeTypes[in.MimeType]
	if !ok {
		return nil, apierr.BadRequest("UNSUPPORTED_MIME_TYPE", fmt.Errorf("unsupported mime type %q", in.MimeType))
	}
	if fnExt := strings.ToLower(filepath.Ext(in.Filename)); fnExt != "" {
		ext = fnExt
	}

	rec := &types.Recording{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		Title:       title,
		Mode:        mode,
		Status:      types.RecordingStatusPending,
		Filename:    in.Filename,
		MimeType:    in.MimeType,
	}
	objectKey := fmt.Sprintf("recordings/%s/%s%s", ownerUserID, rec.ID, ext)
	rec.ObjectKey = &objectKey

	if _, err := s.recordings.Create(ctx, nil, rec); err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	upload, err := s.bucket.IssueUploadURL(ctx, objectKey, in.MimeType, 0)
	if err != nil {
		return nil, fmt.Errorf("issue upload url: %w", err)
	}

	s.log.Info("Recording created", "recording_id", rec.ID, "owner_user_id", ownerUserID, "mode", mode)
	return &CreateRecordingResult{Recording: rec, Upload: upload}, nil
}

// CompleteUpload is the client's signal that the bytes landed. The object is
// verified against the store before anything moves; a handshake for a missing
// object is rejected and the recording stays pending so the client can retry
// the upload.
func (s *recordingService) CompleteUpload(ctx context.Context, ownerUserID, id uuid.UUID, sizeBytes int64) (*types.Recording, error) {
	ctx = ctxutil.Default(ctx)
	rec, err := s.getOwned(ctx, ownerUserID, id)
	if err != nil {
		return nil, err
	}
	if rec.ObjectKey == nil || *rec.ObjectKey == "" {
		return nil, apierr.BadRequest("NO_UPLOAD_SLOT", fmt.Errorf("recording has no upload destination"))
	}

	exists, err := s.bucket.ObjectExists(ctx, *rec.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("verify uploaded object: %w", err)
	}
	if !exists {
		return nil, apierr.BadRequest("OBJECT_NOT_UPLOADED", fmt.Errorf("uploaded object not found in storage"))
	}

	updates := map[string]interface{}{"status": types.RecordingStatusUploaded}
	if sizeBytes > 0 {
		updates["size_bytes"] = sizeBytes
	}
	moved, err := s.recordings.UpdateFieldsIfStatus(ctx, nil, id,
		[]string{types.RecordingStatusPending}, updates)
	if err != nil {
		return nil, err
	}
	if !moved {
		// The handshake is only valid once, against a pending recording.
		cur, gErr := s.getOwned(ctx, ownerUserID, id)
		if gErr != nil {
			return nil, gErr
		}
		return nil, apierr.Conflict("UPLOAD_NOT_ACCEPTED", fmt.Errorf("recording is %s, not pending", cur.Status))
	}
	rec.Status = types.RecordingStatusUploaded
	if sizeBytes > 0 {
		rec.SizeBytes = sizeBytes
	}

	if _, err := s.enqueue(ctx, rec, types.JobTypeTranscribe,
		[]string{types.RecordingStatusUploaded}); err != nil {
		return nil, err
	}
	rec.Status = types.RecordingStatusProcessing
	return rec, nil
}

func (s *recordingService) Get(ctx context.Context, ownerUserID, id uuid.UUID, includeArtifacts bool) (*RecordingDetail, error) {
	ctx = ctxutil.Default(ctx)
	rec, err := s.getOwned(ctx, ownerUserID, id)
	if err != nil {
		return nil, err
	}
	detail := &RecordingDetail{Recording: rec}
	if rec.Status == types.RecordingStatusFailed {
		if detail.FailedStage, err = s.failedStage(ctx, id); err != nil {
			return nil, err
		}
	}
	if !includeArtifacts {
		return detail, nil
	}
	if detail.Transcript, err = s.transcripts.GetByRecordingID(ctx, nil, id); err != nil {
		return nil, err
	}
	if detail.Debrief, err = s.debriefs.GetByRecordingID(ctx, nil, id); err != nil {
		return nil, err
	}
	return detail, nil
}

// failedStage inspects the newest job row per stage and reports the stage
// whose latest attempt failed. When both stages carry a failed latest
// attempt the more recent one wins.
func (s *recordingService) failedStage(ctx context.Context, id uuid.UUID) (string, error) {
	var stage string
	var newest time.Time
	for _, jobType := range []string{types.JobTypeTranscribe, types.JobTypeDebrief} {
		job, err := s.jobs.GetLatestByRecordingAndType(ctx, nil, id, jobType)
		if err != nil {
			return "", err
		}
		if job == nil || job.Status != types.JobStatusFailed {
			continue
		}
		if stage == "" || job.CreatedAt.After(newest) {
			stage = jobType
			newest = job.CreatedAt
		}
	}
	return stage, nil
}

func (s *recordingService) List(ctx context.Context, ownerUserID uuid.UUID, page, limit int, statusFilter string) ([]*types.Recording, int64, error) {
	ctx = ctxutil.Default(ctx)
	if statusFilter != "" {
		switch statusFilter {
		case types.RecordingStatusPending, types.RecordingStatusUploaded,
			types.RecordingStatusProcessing, types.RecordingStatusComplete,
			types.RecordingStatusFailed:
		default:
			return nil, 0, apierr.BadRequest("INVALID_STATUS_FILTER", fmt.Errorf("unknown status %q", statusFilter))
		}
	}
	return s.recordings.ListByOwner(ctx, nil, ownerUserID, page, limit, statusFilter)
}

func (s *recordingService) ListJobs(ctx context.Context, ownerUserID, id uuid.UUID) ([]*types.Job, error) {
	ctx = ctxutil.Default(ctx)
	if _, err := s.getOwned(ctx, ownerUserID, id); err != nil {
		return nil, err
	}
	return s.jobs.ListByRecording(ctx, nil, id)
}

// RetryTranscription re-runs the whole pipeline from the stored audio. Any
// existing debrief is torn down first so a reader never pairs a fresh
// transcript with a stale debrief.
func (s *recordingService) RetryTranscription(ctx context.Context, ownerUserID, id uuid.UUID) (*types.Job, error) {
	ctx = ctxutil.Default(ctx)
	rec, err := s.getOwned(ctx, ownerUserID, id)
	if err != nil {
		return nil, err
	}
	if rec.ObjectKey == nil || *rec.ObjectKey == "" {
		return nil, apierr.BadRequest("NO_AUDIO", fmt.Errorf("recording has no uploaded audio"))
	}
	if rec.Status != types.RecordingStatusFailed {
		return nil, apierr.Conflict("RETRY_NOT_ALLOWED", fmt.Errorf("recording is %s, retries apply to failed recordings", rec.Status))
	}

	if err := s.debriefs.DeleteByRecordingID(ctx, nil, id); err != nil {
		return nil, fmt.Errorf("clear debrief before retry: %w", err)
	}
	return s.enqueue(ctx, rec, types.JobTypeTranscribe,
		[]string{types.RecordingStatusFailed})
}

// RetryDebrief re-runs only the second stage against the stored transcript.
func (s *recordingService) RetryDebrief(ctx context.Context, ownerUserID, id uuid.UUID) (*types.Job, error) {
	ctx = ctxutil.Default(ctx)
	rec, err := s.getOwned(ctx, ownerUserID, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.RecordingStatusFailed {
		return nil, apierr.Conflict("RETRY_NOT_ALLOWED", fmt.Errorf("recording is %s, retries apply to failed recordings", rec.Status))
	}
	transcript, err := s.transcripts.GetByRecordingID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if transcript == nil || !transcript.Usable() {
		return nil, apierr.BadRequest("NO_USABLE_TRANSCRIPT", fmt.Errorf("recording has no usable transcript"))
	}
	return s.enqueue(ctx, rec, types.JobTypeDebrief,
		[]string{types.RecordingStatusFailed})
}

func (s *recordingService) DownloadURL(ctx context.Context, ownerUserID, id uuid.UUID) (*gcp.SignedDestination, error) {
	ctx = ctxutil.Default(ctx)
	rec, err := s.getOwned(ctx, ownerUserID, id)
	if err != nil {
		return nil, err
	}
	if rec.ObjectKey == nil || *rec.ObjectKey == "" {
		return nil, apierr.NotFound("NO_AUDIO", fmt.Errorf("recording has no uploaded audio"))
	}
	if rec.Status == types.RecordingStatusPending {
		return nil, apierr.BadRequest("UPLOAD_INCOMPLETE", fmt.Errorf("upload has not completed"))
	}
	return s.bucket.IssueDownloadURL(ctx, *rec.ObjectKey, 10*time.Minute)
}

func (s *recordingService) getOwned(ctx context.Context, ownerUserID, id uuid.UUID) (*types.Recording, error) {
	rec, err := s.recordings.GetByIDForOwner(ctx, nil, ownerUserID, id)
	if err != nil {
		if err == repos.ErrNotFound {
			return nil, apierr.NotFound("RECORDING_NOT_FOUND", err)
		}
		return nil, err
	}
	return rec, nil
}

// enqueue writes a fresh pending job row with the next attempt stamp, flips
// the recording into processing (guarded by allowedFrom) and notifies. Trace
// identifiers travel in the payload so worker logs correlate with the
// request that caused the run.
func (s *recordingService) enqueue(ctx context.Context, rec *types.Recording, jobType string, allowedFrom []string) (*types.Job, error) {
	seq, err := s.jobs.NextAttemptSeq(ctx, nil, rec.ID, jobType)
	if err != nil {
		return nil, fmt.Errorf("next attempt seq: %w", err)
	}

	payload := map[string]any{}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	job := &types.Job{
		RecordingID: rec.ID,
		OwnerUserID: rec.OwnerUserID,
		JobType:     jobType,
		Status:      types.JobStatusPending,
		AttemptSeq:  seq,
		Payload:     datatypes.JSON(raw),
	}
	if _, err := s.jobs.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create %s job: %w", jobType, err)
	}

	if _, err := s.recordings.UpdateFieldsIfStatus(ctx, nil, rec.ID, allowedFrom,
		map[string]interface{}{"status": types.RecordingStatusProcessing}); err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.JobCreated(rec.OwnerUserID, job)
	}
	s.log.Info("Job enqueued", "recording_id", rec.ID, "job_type", jobType, "attempt_seq", seq)
	return job, nil
}
