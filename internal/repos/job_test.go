package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/debrief-backend/internal/types"
)

func newTestJob(t *testing.T, repo JobRepo, recordingID uuid.UUID, jobType string, seq int) *types.Job {
	t.Helper()
	job, err := repo.Create(context.Background(), nil, &types.Job{
		RecordingID: recordingID,
		OwnerUserID: uuid.New(),
		JobType:     jobType,
		AttemptSeq:  seq,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestJobTransitionLegalPath(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	job := newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)
	if job.Status != types.JobStatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}

	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusRunning, ""); err != nil {
		t.Fatalf("pending->running: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != types.JobStatusRunning || got.StartedAt == nil {
		t.Fatalf("expected running with started_at, got %s / %v", got.Status, got.StartedAt)
	}

	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusComplete, ""); err != nil {
		t.Fatalf("running->complete: %v", err)
	}
	got, _ = repo.GetByID(ctx, nil, job.ID)
	if got.Status != types.JobStatusComplete || got.CompletedAt == nil {
		t.Fatalf("expected complete with completed_at, got %s / %v", got.Status, got.CompletedAt)
	}
}

func TestJobTransitionRejectsIllegalMoves(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	job := newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)

	// pending -> complete skips running
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusComplete, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// unknown target status
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusPending, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending target, got %v", err)
	}

	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusRunning, ""); err != nil {
		t.Fatalf("pending->running: %v", err)
	}
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusFailed, "provider exploded"); err != nil {
		t.Fatalf("running->failed: %v", err)
	}
	// failed is terminal for the ledger
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusComplete, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from failed, got %v", err)
	}

	got, _ := repo.GetByID(ctx, nil, job.ID)
	if got.Error != "provider exploded" || got.LastErrorAt == nil {
		t.Fatalf("expected error recorded, got %q / %v", got.Error, got.LastErrorAt)
	}
}

func TestJobTransitionTruncatesError(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	job := newTestJob(t, repo, uuid.New(), types.JobTypeDebrief, 1)
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusRunning, ""); err != nil {
		t.Fatalf("to running: %v", err)
	}
	long := make([]byte, maxErrorLen*2)
	for i := range long {
		long[i] = 'x'
	}
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusFailed, string(long)); err != nil {
		t.Fatalf("to failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, nil, job.ID)
	if len(got.Error) != maxErrorLen {
		t.Fatalf("expected error truncated to %d, got %d", maxErrorLen, len(got.Error))
	}
}

func TestNextAttemptSeq(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()
	recID := uuid.New()

	seq, err := repo.NextAttemptSeq(ctx, nil, recID, types.JobTypeTranscribe)
	if err != nil || seq != 1 {
		t.Fatalf("expected first seq 1, got %d / %v", seq, err)
	}
	newTestJob(t, repo, recID, types.JobTypeTranscribe, seq)

	seq, err = repo.NextAttemptSeq(ctx, nil, recID, types.JobTypeTranscribe)
	if err != nil || seq != 2 {
		t.Fatalf("expected seq 2, got %d / %v", seq, err)
	}
	// different stage counts independently
	seq, err = repo.NextAttemptSeq(ctx, nil, recID, types.JobTypeDebrief)
	if err != nil || seq != 1 {
		t.Fatalf("expected debrief seq 1, got %d / %v", seq, err)
	}
}

func TestClaimNextRunnable(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	first := newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)
	time.Sleep(5 * time.Millisecond)
	newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)
	newTestJob(t, repo, uuid.New(), types.JobTypeDebrief, 1)

	claimed, err := repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 3, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest transcribe job claimed")
	}
	if claimed.Status != types.JobStatusRunning || claimed.Attempts != 1 {
		t.Fatalf("expected running attempts=1, got %s attempts=%d", claimed.Status, claimed.Attempts)
	}
	if claimed.HeartbeatAt == nil || claimed.LockedAt == nil {
		t.Fatalf("expected heartbeat and lock stamped")
	}
}

func TestClaimSkipsFreshFailuresAndRespectsBudget(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	job := newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusRunning, ""); err != nil {
		t.Fatalf("to running: %v", err)
	}
	if err := repo.Transition(ctx, nil, job.ID, types.JobStatusFailed, "boom"); err != nil {
		t.Fatalf("to failed: %v", err)
	}

	// Just failed: retry delay has not elapsed.
	claimed, err := repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 3, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claim inside retry delay, got %v", claimed.ID)
	}

	// Zero retry delay: the failed job is runnable again.
	claimed, err = repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 3, 0, time.Hour)
	if err != nil {
		t.Fatalf("claim after delay: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected failed job reclaimed")
	}

	// Exhaust the budget: attempts no longer below max.
	if err := repo.Transition(ctx, nil, claimed.ID, types.JobStatusFailed, "boom again"); err != nil {
		t.Fatalf("to failed again: %v", err)
	}
	claimed, err = repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 1, 0, time.Hour)
	if err != nil {
		t.Fatalf("claim over budget: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claim over attempt budget")
	}
}

func TestClaimReclaimsStaleRunning(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	job := newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)
	claimed, err := repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 3, time.Minute, time.Hour)
	if err != nil || claimed == nil {
		t.Fatalf("initial claim: %v", err)
	}

	// Heartbeat is fresh: nothing to reclaim.
	again, err := repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 3, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected fresh running job left alone")
	}

	// Zero stale threshold treats any heartbeat as stale.
	again, err = repo.ClaimNextRunnable(ctx, nil, types.JobTypeTranscribe, 3, time.Minute, 0)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if again == nil || again.ID != job.ID {
		t.Fatalf("expected stale running job reclaimed")
	}
	if again.Attempts != 2 {
		t.Fatalf("expected attempts bumped to 2, got %d", again.Attempts)
	}
}

func TestHeartbeatOnlyTouchesRunning(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()

	job := newTestJob(t, repo, uuid.New(), types.JobTypeTranscribe, 1)
	if err := repo.Heartbeat(ctx, nil, job.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, _ := repo.GetByID(ctx, nil, job.ID)
	if got.HeartbeatAt != nil {
		t.Fatalf("pending job should not take a heartbeat")
	}
}

func TestListByRecordingOrdersByCreation(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db, testLogger(t))
	ctx := context.Background()
	recID := uuid.New()

	a := newTestJob(t, repo, recID, types.JobTypeTranscribe, 1)
	time.Sleep(5 * time.Millisecond)
	b := newTestJob(t, repo, recID, types.JobTypeDebrief, 1)

	jobs, err := repo.ListByRecording(ctx, nil, recID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != a.ID || jobs[1].ID != b.ID {
		t.Fatalf("expected creation order, got %d jobs", len(jobs))
	}
}
