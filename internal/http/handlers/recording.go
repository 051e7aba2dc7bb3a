package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/debrief-backend/internal/http/response"
	"github.com/yungbote/debrief-backend/internal/platform/ctxutil"
	"github.com/yungbote/debrief-backend/internal/services"
)

type RecordingHandler struct {
	recordings services.RecordingService
}

func NewRecordingHandler(recordings services.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordings: recordings}
}

func requestUserID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func recordingIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_recording_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/recordings
func (h *RecordingHandler) Create(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var in services.CreateRecordingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := h.recordings.Create(c.Request.Context(), userID, in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, result)
}

// POST /api/recordings/:id/complete-upload
func (h *RecordingHandler) CompleteUpload(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := recordingIDParam(c)
	if !ok {
		return
	}
	var body struct {
		SizeBytes int64 `json:"size_bytes"`
	}
	_ = c.ShouldBindJSON(&body)
	rec, err := h.recordings.CompleteUpload(c.Request.Context(), userID, id, body.SizeBytes)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"recording": rec})
}

// GET /api/recordings
func (h *RecordingHandler) List(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	recs, total, err := h.recordings.List(c.Request.Context(), userID, page, limit, c.Query("status"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"recordings": recs,
		"total":      total,
		"page":       page,
		"limit":      limit,
	})
}

// GET /api/recordings/:id
func (h *RecordingHandler) Get(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := recordingIDParam(c)
	if !ok {
		return
	}
	includeArtifacts := c.Query("include") == "artifacts"
	detail, err := h.recordings.Get(c.Request.Context(), userID, id, includeArtifacts)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, detail)
}

// GET /api/recordings/:id/jobs
func (h *RecordingHandler) ListJobs(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := recordingIDParam(c)
	if !ok {
		return
	}
	jobs, err := h.recordings.ListJobs(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/recordings/:id/retry-transcription
func (h *RecordingHandler) RetryTranscription(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := recordingIDParam(c)
	if !ok {
		return
	}
	job, err := h.recordings.RetryTranscription(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/recordings/:id/retry-debrief
func (h *RecordingHandler) RetryDebrief(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := recordingIDParam(c)
	if !ok {
		return
	}
	job, err := h.recordings.RetryDebrief(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/recordings/:id/download-url
func (h *RecordingHandler) DownloadURL(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := recordingIDParam(c)
	if !ok {
		return
	}
	dest, err := h.recordings.DownloadURL(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"download": dest})
}
