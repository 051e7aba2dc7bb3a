package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/debrief-backend/internal/http/response"
	"github.com/yungbote/debrief-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, sErr := h.jobs.GetByIDForOwner(c.Request.Context(), userID, jobID)
	if sErr != nil {
		response.RespondServiceError(c, sErr)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
