package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/platform/ctxutil"
	"github.com/yungbote/debrief-backend/internal/repos"
	"github.com/yungbote/debrief-backend/internal/services"
	"github.com/yungbote/debrief-backend/internal/types"
)

// Context is the execution handle for a single claimed job. It wraps the DB
// handle, the in-memory job row, the ledger repo and the notifier, and is
// the only sanctioned way a stage handler terminates its run. Handlers never
// write the job row directly.
type Context struct {
	Ctx        context.Context
	DB         *gorm.DB
	Job        *types.Job
	Jobs       repos.JobRepo
	Recordings repos.RecordingRepo
	Notify     services.JobNotifier
	payload    map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.Job, jobRepo repos.JobRepo, recRepo repos.RecordingRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:        ctx,
		DB:         db,
		Job:        job,
		Jobs:       jobRepo,
		Recordings: recRepo,
		Notify:     notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	payload := c.Payload()
	traceID := strings.TrimSpace(fmt.Sprint(payload["trace_id"]))
	reqID := strings.TrimSpace(fmt.Sprint(payload["request_id"]))
	if traceID == "<nil>" {
		traceID = ""
	}
	if reqID == "<nil>" {
		reqID = ""
	}
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) RecordingID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.RecordingID
}

func (c *Context) Heartbeat() {
	if c == nil || c.Jobs == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Jobs.Heartbeat(c.Ctx, nil, c.Job.ID)
}

// EnsureRecordingProcessing re-enters processing when the queue re-attempts
// a unit whose earlier run had already flipped the recording to failed.
func (c *Context) EnsureRecordingProcessing() {
	if c == nil || c.Recordings == nil || c.Job == nil {
		return
	}
	_, _ = c.Recordings.UpdateFieldsIfStatus(c.Ctx, nil, c.Job.RecordingID,
		[]string{types.RecordingStatusFailed},
		map[string]interface{}{"status": types.RecordingStatusProcessing},
	)
}

// Complete marks the job complete in the ledger and notifies.
func (c *Context) Complete() error {
	if c == nil || c.Jobs == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	if err := c.Jobs.Transition(c.Ctx, nil, c.Job.ID, types.JobStatusComplete, ""); err != nil {
		return err
	}
	c.Job.Status = types.JobStatusComplete
	if c.Notify != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
	return nil
}

// Fail writes the failure to the job ledger, flips the recording to failed
// and notifies. The recording write is guarded so a stale worker cannot
// knock a recording out of complete. Losing this write would strand pollers
// in processing forever, so it happens before the error is surfaced.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if c.Jobs != nil {
		if tErr := c.Jobs.Transition(c.Ctx, nil, c.Job.ID, types.JobStatusFailed, msg); tErr == nil {
			c.Job.Status = types.JobStatusFailed
			c.Job.Error = msg
		}
	}
	if c.Recordings != nil {
		_, _ = c.Recordings.UpdateFieldsIfStatus(c.Ctx, nil, c.Job.RecordingID,
			[]string{types.RecordingStatusUploaded, types.RecordingStatusProcessing},
			map[string]interface{}{"status": types.RecordingStatusFailed},
		)
	}
	if c.Notify != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}
