package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNextDelayCapsAndJitters(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second

	require.Equal(t, base, nextDelay(base, cap, 0, 0))
	require.Equal(t, 2*base, nextDelay(base, cap, 0, 1))
	require.Equal(t, cap, nextDelay(base, cap, 0, 10), "delay must be capped")

	jitter := 50 * time.Millisecond
	for i := 0; i < 20; i++ {
		d := nextDelay(base, cap, jitter, 0)
		require.GreaterOrEqual(t, d, base)
		require.Less(t, d, base+jitter)
	}
}

func TestAttemptResetsOnFingerprintChange(t *testing.T) {
	stalled := Fingerprint{Status: "processing"}
	progressed := Fingerprint{Status: "processing", HasTranscript: true}

	require.Equal(t, 0, nextAttempt(9, true, Fingerprint{}, stalled), "first observation starts at the base delay")
	require.Equal(t, 1, nextAttempt(0, false, stalled, stalled))
	require.Equal(t, 10, nextAttempt(9, false, stalled, stalled), "stagnation keeps growing the backoff")
	require.Equal(t, 0, nextAttempt(9, false, stalled, progressed), "any fingerprint change resets the backoff")

	// After a reset the very next delay is the base value again.
	base := 100 * time.Millisecond
	attempt := nextAttempt(9, false, stalled, progressed)
	require.Equal(t, base, nextDelay(base, time.Second, 0, attempt))
}

func TestFingerprintTerminal(t *testing.T) {
	require.True(t, Fingerprint{Status: "failed"}.Terminal())
	require.True(t, Fingerprint{Status: "complete", HasDebrief: true}.Terminal())
	// complete without the debrief yet is still in flight
	require.False(t, Fingerprint{Status: "complete"}.Terminal())
	require.False(t, Fingerprint{Status: "processing", HasTranscript: true}.Terminal())
}

// watchServer serves a scripted sequence of recording states, holding the
// last one forever.
func watchServer(t *testing.T, id uuid.UUID, states []RecordingDetail, polls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(polls.Add(1)) - 1
		if n >= len(states) {
			n = len(states) - 1
		}
		_ = json.NewEncoder(w).Encode(states[n])
	}))
}

func stateOf(id uuid.UUID, status string, hasTranscript, hasDebrief bool) RecordingDetail {
	d := RecordingDetail{Recording: &Recording{ID: id, Status: status}}
	if hasTranscript {
		d.Transcript = &Transcript{ID: uuid.New(), RecordingID: id, Text: "words"}
	}
	if hasDebrief {
		d.Debrief = &Debrief{ID: uuid.New(), RecordingID: id, Text: "summary"}
	}
	return d
}

func TestWatcherStopsAtCompleteWithDebrief(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	srv := watchServer(t, id, []RecordingDetail{
		stateOf(id, "processing", false, false),
		stateOf(id, "processing", true, false),
		stateOf(id, "complete", true, false), // not yet terminal
		stateOf(id, "complete", true, true),
	}, &polls)
	defer srv.Close()

	var updates int
	w := NewWatcher(New(srv.URL, "tok"), WatchOptions{
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Jitter:    -1,
		OnUpdate:  func(d *RecordingDetail) { updates++ },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	detail, err := w.Watch(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, detail.Debrief)
	require.Equal(t, "complete", detail.Recording.Status)
	require.Equal(t, 4, updates)
	require.EqualValues(t, 4, polls.Load())
}

func TestWatcherStopsOnFailed(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	srv := watchServer(t, id, []RecordingDetail{
		stateOf(id, "processing", false, false),
		stateOf(id, "failed", true, false),
	}, &polls)
	defer srv.Close()

	w := NewWatcher(New(srv.URL, "tok"), WatchOptions{
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Jitter:    -1,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	detail, err := w.Watch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "failed", detail.Recording.Status)
}

func TestWatcherHonorsCancellation(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	srv := watchServer(t, id, []RecordingDetail{
		stateOf(id, "processing", false, false),
	}, &polls)
	defer srv.Close()

	w := NewWatcher(New(srv.URL, "tok"), WatchOptions{
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  time.Second,
		Jitter:    -1,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := w.Watch(ctx, id)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatcherSwitchResetsToNewIdentity(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The first identity never progresses; the second is instantly done.
		var d RecordingDetail
		if r.URL.Path == "/api/recordings/"+second.String() {
			d = stateOf(second, "complete", true, true)
		} else {
			d = stateOf(first, "processing", false, false)
		}
		_ = json.NewEncoder(w).Encode(d)
	}))
	defer srv.Close()

	w := NewWatcher(New(srv.URL, "tok"), WatchOptions{
		BaseDelay: 20 * time.Millisecond,
		MaxDelay:  100 * time.Millisecond,
		Jitter:    -1,
	})
	go func() {
		time.Sleep(30 * time.Millisecond)
		w.Switch(second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	detail, err := w.Watch(ctx, first)
	require.NoError(t, err)
	require.Equal(t, second, detail.Recording.ID)
}
