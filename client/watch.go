package client

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Fingerprint condenses the observed pipeline state into the value the
// watcher keys its backoff on: progress is any change here, not just a
// status flip.
type Fingerprint struct {
	Status        string
	HasTranscript bool
	HasDebrief    bool
}

func fingerprintOf(d *RecordingDetail) Fingerprint {
	fp := Fingerprint{}
	if d == nil || d.Recording == nil {
		return fp
	}
	fp.Status = d.Recording.Status
	fp.HasTranscript = d.Transcript != nil
	fp.HasDebrief = d.Debrief != nil
	return fp
}

// Terminal reports whether polling should stop. complete without a debrief
// is deliberately non-terminal: debrief generation can lag the status flip.
func (fp Fingerprint) Terminal() bool {
	if fp.Status == "failed" {
		return true
	}
	return fp.Status == "complete" && fp.HasDebrief
}

type WatchOptions struct {
	BaseDelay time.Duration // default 1s
	MaxDelay  time.Duration // default 30s
	Jitter    time.Duration // default 250ms of uniform random jitter
	OnUpdate  func(d *RecordingDetail)
}

func (o *WatchOptions) defaults() {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	} else if o.Jitter == 0 {
		o.Jitter = 250 * time.Millisecond
	}
}

// nextAttempt advances the stagnation counter. The first observation and any
// fingerprint change reset backoff to the base delay; an unchanged
// fingerprint grows it.
func nextAttempt(attempt int, first bool, prev, cur Fingerprint) int {
	if first || cur != prev {
		return 0
	}
	return attempt + 1
}

// nextDelay computes min(base*2^attempt, cap) plus bounded jitter.
func nextDelay(base, cap, jitter time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(cap) {
		d = float64(cap)
	}
	out := time.Duration(d)
	if jitter > 0 {
		out += time.Duration(rand.Int63n(int64(jitter)))
	}
	return out
}

// Watcher polls one recording at a time until its pipeline state is
// terminal. Switching the watched identity cancels the pending poll and
// resets the backoff. Single outstanding poll per watcher.
type Watcher struct {
	client *Client
	opts   WatchOptions

	switchCh chan uuid.UUID
}

func NewWatcher(c *Client, opts WatchOptions) *Watcher {
	opts.defaults()
	return &Watcher{
		client:   c,
		opts:     opts,
		switchCh: make(chan uuid.UUID, 1),
	}
}

// Switch changes the watched recording. The pending scheduled poll for the
// previous identity is abandoned immediately.
func (w *Watcher) Switch(id uuid.UUID) {
	select {
	case <-w.switchCh:
	default:
	}
	w.switchCh <- id
}

// Watch polls until the recording reaches a terminal fingerprint, the
// context is cancelled, or a Switch supplies a new identity (which restarts
// the loop against it). Returns the last observed detail.
func (w *Watcher) Watch(ctx context.Context, id uuid.UUID) (*RecordingDetail, error) {
	attempt := 0
	var last Fingerprint
	var lastDetail *RecordingDetail
	first := true

	for {
		detail, err := w.client.GetRecording(ctx, id, true)
		if err != nil {
			if ctx.Err() != nil {
				return lastDetail, ctx.Err()
			}
			// Transient fetch errors back off like stagnation.
			attempt++
		} else {
			lastDetail = detail
			fp := fingerprintOf(detail)
			if w.opts.OnUpdate != nil {
				w.opts.OnUpdate(detail)
			}
			if fp.Terminal() {
				return detail, nil
			}
			attempt = nextAttempt(attempt, first, last, fp)
			last = fp
			first = false
		}

		delay := nextDelay(w.opts.BaseDelay, w.opts.MaxDelay, w.opts.Jitter, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastDetail, ctx.Err()
		case newID := <-w.switchCh:
			timer.Stop()
			if newID == id {
				continue
			}
			// New identity: reset everything and poll it immediately.
			id = newID
			attempt = 0
			first = true
			lastDetail = nil
		case <-timer.C:
		}
	}
}
