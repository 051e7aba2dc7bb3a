package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"
)

// FailureKind classifies why an upload attempt failed.
type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureTimeout   FailureKind = "timeout"
	FailureAborted   FailureKind = "aborted"
	FailureHTTPError FailureKind = "http_error"
	FailureUnknown   FailureKind = "unknown"
)

// UploadOutcome reports the final result of an upload including how many
// attempts it took.
type UploadOutcome struct {
	OK          bool
	Attempts    int
	StatusCode  int
	Failure     FailureKind
	Err         error
	BytesSent   int64
	DurationMs  int64
}

// Progress is delivered after each chunk. Fraction is negative when the
// total size is unknown.
type Progress struct {
	Bytes    int64
	Total    int64
	Fraction float64
}

type UploadOptions struct {
	ContentType string
	MaxRetries  int           // retries after the first attempt; default 3
	Timeout     time.Duration // per-attempt bound; default 2m
	BaseDelay   time.Duration // backoff base; default 500ms
	Jitter      time.Duration // default 250ms
	OnProgress  func(p Progress)
}

func (o *UploadOptions) defaults() {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.Jitter == 0 {
		o.Jitter = 250 * time.Millisecond
	}
}

// retriable: network and timeout always; http_error only on 408, 429, 5xx;
// aborted never.
func retriable(kind FailureKind, status int) bool {
	switch kind {
	case FailureNetwork, FailureTimeout:
		return true
	case FailureHTTPError:
		return status == http.StatusRequestTimeout ||
			status == http.StatusTooManyRequests ||
			status >= 500
	default:
		return false
	}
}

type progressReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress func(p Progress)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		if pr.onProgress != nil {
			prog := Progress{Bytes: pr.sent, Total: pr.total, Fraction: -1}
			if pr.total > 0 {
				prog.Fraction = float64(pr.sent) / float64(pr.total)
			}
			pr.onProgress(prog)
		}
	}
	return n, err
}

// Upload PUTs blob to a pre-authorized destination URL, retrying transient
// failures with jittered exponential backoff. Cancelling ctx aborts the
// in-flight attempt and short-circuits all pending retries.
func Upload(ctx context.Context, destinationURL string, blob []byte, opts UploadOptions) UploadOutcome {
	opts.defaults()
	start := time.Now()
	httpClient := &http.Client{}

	out := UploadOutcome{}
	maxAttempts := opts.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt
		kind, status, sent, err := uploadOnce(ctx, httpClient, destinationURL, blob, opts)
		out.BytesSent = sent
		if err == nil {
			out.OK = true
			out.StatusCode = status
			out.DurationMs = time.Since(start).Milliseconds()
			return out
		}
		out.Failure = kind
		out.StatusCode = status
		out.Err = err

		if kind == FailureAborted || !retriable(kind, status) || attempt == maxAttempts {
			break
		}

		delay := backoffDelay(opts.BaseDelay, opts.Jitter, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			out.Failure = FailureAborted
			out.Err = ctx.Err()
			out.DurationMs = time.Since(start).Milliseconds()
			return out
		case <-timer.C:
		}
	}
	out.DurationMs = time.Since(start).Milliseconds()
	return out
}

// backoffDelay computes base*2^(attempt-1) plus bounded jitter.
func backoffDelay(base, jitter time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	return d
}

func uploadOnce(ctx context.Context, httpClient *http.Client, url string, blob []byte, opts UploadOptions) (FailureKind, int, int64, error) {
	if ctx.Err() != nil {
		return FailureAborted, 0, 0, ctx.Err()
	}
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	pr := &progressReader{
		r:          bytes.NewReader(blob),
		total:      int64(len(blob)),
		onProgress: opts.OnProgress,
	}
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPut, url, pr)
	if err != nil {
		return FailureUnknown, 0, 0, err
	}
	req.ContentLength = int64(len(blob))
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, attemptCtx, err), 0, pr.sent, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FailureHTTPError, resp.StatusCode, pr.sent,
			fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}
	return "", resp.StatusCode, pr.sent, nil
}

func classifyTransportError(parent, attempt context.Context, err error) FailureKind {
	if parent.Err() != nil {
		return FailureAborted
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return FailureTimeout
	}
	var nErr net.Error
	if errors.As(err, &nErr) {
		if nErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	return FailureNetwork
}
