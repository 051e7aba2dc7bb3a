package jobs

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/repos"
	"github.com/yungbote/debrief-backend/internal/services"
	"github.com/yungbote/debrief-backend/internal/types"
	"github.com/yungbote/debrief-backend/internal/utils"
)

// Worker drives the durable queue: one claim loop per registered stage, each
// gated by a per-stage semaphore so only a small fixed number of units per
// stage is in flight at once (provider rate limits). Units for different
// recordings run in parallel; the single-active-job-row-per-stage convention
// plus idempotent artifact upserts keep brief double-execution safe.
type Worker struct {
	db         *gorm.DB
	log        *logger.Logger
	jobs       repos.JobRepo
	recordings repos.RecordingRepo
	registry   *Registry
	notify     services.JobNotifier
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, jobRepo repos.JobRepo, recRepo repos.RecordingRepo, registry *Registry, notify services.JobNotifier) *Worker {
	return &Worker{
		db:         db,
		log:        baseLog.With("component", "JobWorker"),
		jobs:       jobRepo,
		recordings: recRepo,
		registry:   registry,
		notify:     notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("WORKER_STAGE_CONCURRENCY", 2, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	stages := w.registry.Types()
	w.log.Info("Starting job worker pools", "stages", stages, "per_stage_concurrency", concurrency)

	for _, jobType := range stages {
		go w.runLoop(ctx, jobType, int64(concurrency))
	}
}

func (w *Worker) runLoop(ctx context.Context, jobType string, concurrency int64) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	maxAttempts := utils.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 3, w.log)
	retryDelay := 30 * time.Second
	staleRunning := 30 * time.Minute
	sem := semaphore.NewWeighted(concurrency)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "job_type", jobType)
			return
		case <-ticker.C:
			if !sem.TryAcquire(1) {
				continue
			}
			job, err := w.jobs.ClaimNextRunnable(ctx, w.db, jobType, maxAttempts, retryDelay, staleRunning)
			if err != nil {
				sem.Release(1)
				w.log.Warn("ClaimNextRunnable failed", "job_type", jobType, "error", err)
				continue
			}
			if job == nil {
				sem.Release(1)
				continue
			}
			go func() {
				defer sem.Release(1)
				w.execute(ctx, jobType, job)
			}()
		}
	}
}

func (w *Worker) execute(ctx context.Context, jobType string, job *types.Job) {
	jc := NewContext(ctx, w.db, job, w.jobs, w.recordings, w.notify)

	h, ok := w.registry.Get(jobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", jobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: jobType})
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"job_id", job.ID,
				"job_type", jobType,
				"panic", r,
			)
			jc.Fail("panic", errFromRecover(r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// Failures funnel through one place so the ledger and recording
		// writes can never be skipped.
		jc.Fail(jobType, runErr)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }
