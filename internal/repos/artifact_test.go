package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/debrief-backend/internal/types"
)

func TestTranscriptUpsertKeepsSingleRow(t *testing.T) {
	db := openTestDB(t)
	repo := NewTranscriptRepo(db, testLogger(t))
	ctx := context.Background()
	recID := uuid.New()

	if err := repo.Upsert(ctx, nil, &types.Transcript{RecordingID: recID, Text: "first pass", AttemptSeq: 1}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(ctx, nil, &types.Transcript{RecordingID: recID, Text: "second pass", AttemptSeq: 2}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	if err := db.Model(&types.Transcript{}).Where("recording_id = ?", recID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one transcript row, got %d", count)
	}
	got, err := repo.GetByRecordingID(ctx, nil, recID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "second pass" || got.AttemptSeq != 2 {
		t.Fatalf("expected latest output, got %q seq=%d", got.Text, got.AttemptSeq)
	}
}

func TestTranscriptUpsertDropsSupersededAttempt(t *testing.T) {
	db := openTestDB(t)
	repo := NewTranscriptRepo(db, testLogger(t))
	ctx := context.Background()
	recID := uuid.New()

	if err := repo.Upsert(ctx, nil, &types.Transcript{RecordingID: recID, Text: "retry output", AttemptSeq: 3}); err != nil {
		t.Fatalf("upsert seq 3: %v", err)
	}
	// A slow worker from an earlier attempt finishes late.
	if err := repo.Upsert(ctx, nil, &types.Transcript{RecordingID: recID, Text: "stale output", AttemptSeq: 2}); err != nil {
		t.Fatalf("upsert seq 2: %v", err)
	}

	got, err := repo.GetByRecordingID(ctx, nil, recID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "retry output" || got.AttemptSeq != 3 {
		t.Fatalf("stale attempt overwrote newer output: %q seq=%d", got.Text, got.AttemptSeq)
	}
}

func TestTranscriptUsable(t *testing.T) {
	if (&types.Transcript{Text: types.PlaceholderTranscriptText}).Usable() {
		t.Fatalf("placeholder transcript must not be usable")
	}
	if (&types.Transcript{Text: ""}).Usable() {
		t.Fatalf("empty transcript must not be usable")
	}
	if !(&types.Transcript{Text: "hello"}).Usable() {
		t.Fatalf("real transcript must be usable")
	}
}

func TestDebriefUpsertAndDelete(t *testing.T) {
	db := openTestDB(t)
	repo := NewDebriefRepo(db, testLogger(t))
	ctx := context.Background()
	recID := uuid.New()

	if err := repo.Upsert(ctx, nil, &types.Debrief{RecordingID: recID, Text: "v1", AttemptSeq: 1}); err != nil {
		t.Fatalf("upsert v1: %v", err)
	}
	if err := repo.Upsert(ctx, nil, &types.Debrief{RecordingID: recID, Text: "v2", AttemptSeq: 2}); err != nil {
		t.Fatalf("upsert v2: %v", err)
	}
	got, err := repo.GetByRecordingID(ctx, nil, recID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "v2" {
		t.Fatalf("expected v2, got %q", got.Text)
	}

	if err := repo.DeleteByRecordingID(ctx, nil, recID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = repo.GetByRecordingID(ctx, nil, recID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected debrief gone")
	}
}

func TestRecordingUpdateFieldsIfStatusGuard(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordingRepo(db, testLogger(t))
	ctx := context.Background()

	rec, err := repo.Create(ctx, nil, &types.Recording{
		OwnerUserID: uuid.New(),
		Title:       "standup",
		Mode:        types.RecordingModeMeeting,
		Status:      types.RecordingStatusComplete,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A stale worker trying to fail a completed recording is rejected.
	moved, err := repo.UpdateFieldsIfStatus(ctx, nil, rec.ID,
		[]string{types.RecordingStatusUploaded, types.RecordingStatusProcessing},
		map[string]interface{}{"status": types.RecordingStatusFailed})
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if moved {
		t.Fatalf("guard should reject complete -> failed")
	}
	got, _ := repo.GetByID(ctx, nil, rec.ID)
	if got.Status != types.RecordingStatusComplete {
		t.Fatalf("status clobbered to %s", got.Status)
	}

	moved, err = repo.UpdateFieldsIfStatus(ctx, nil, rec.ID,
		[]string{types.RecordingStatusComplete},
		map[string]interface{}{"status": types.RecordingStatusProcessing})
	if err != nil || !moved {
		t.Fatalf("expected allowed transition, moved=%v err=%v", moved, err)
	}
}
