package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUploadSucceedsFirstTry(t *testing.T) {
	var gotBody atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "audio/webm", r.Header.Get("Content-Type"))
		buf := make([]byte, 1024)
		for {
			n, err := r.Body.Read(buf)
			gotBody.Add(int64(n))
			if err != nil {
				break
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	blob := make([]byte, 4096)
	out := Upload(context.Background(), srv.URL, blob, UploadOptions{ContentType: "audio/webm"})
	require.True(t, out.OK)
	require.Equal(t, 1, out.Attempts)
	require.EqualValues(t, 4096, gotBody.Load())
}

func TestUploadRetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := Upload(context.Background(), srv.URL, []byte("data"), UploadOptions{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Jitter:     time.Millisecond,
	})
	require.True(t, out.OK)
	require.Equal(t, 3, out.Attempts)
}

func TestUploadNeverRetriesClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out := Upload(context.Background(), srv.URL, []byte("data"), UploadOptions{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
	})
	require.False(t, out.OK)
	require.Equal(t, FailureHTTPError, out.Failure)
	require.Equal(t, http.StatusForbidden, out.StatusCode)
	require.EqualValues(t, 1, calls.Load())
}

func TestUploadRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := Upload(context.Background(), srv.URL, []byte("data"), UploadOptions{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	})
	require.True(t, out.OK)
	require.Equal(t, 2, out.Attempts)
}

func TestUploadExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out := Upload(context.Background(), srv.URL, []byte("data"), UploadOptions{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	})
	require.False(t, out.OK)
	require.Equal(t, 3, out.Attempts)
	require.EqualValues(t, 3, calls.Load())
}

func TestUploadAbortShortCircuitsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := Upload(ctx, srv.URL, []byte("data"), UploadOptions{
		MaxRetries: 5,
		BaseDelay:  time.Second,
	})
	require.False(t, out.OK)
	require.Equal(t, FailureAborted, out.Failure)
}

func TestUploadReportsFractionalProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = http.MaxBytesReader(w, r.Body, 1<<20).Read(make([]byte, 1<<20))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var last Progress
	out := Upload(context.Background(), srv.URL, make([]byte, 8192), UploadOptions{
		OnProgress: func(p Progress) { last = p },
	})
	require.True(t, out.OK)
	require.EqualValues(t, 8192, last.Bytes)
	require.InDelta(t, 1.0, last.Fraction, 0.001)
}

func TestRetriableClassification(t *testing.T) {
	require.True(t, retriable(FailureNetwork, 0))
	require.True(t, retriable(FailureTimeout, 0))
	require.True(t, retriable(FailureHTTPError, http.StatusRequestTimeout))
	require.True(t, retriable(FailureHTTPError, http.StatusTooManyRequests))
	require.True(t, retriable(FailureHTTPError, http.StatusInternalServerError))
	require.False(t, retriable(FailureHTTPError, http.StatusForbidden))
	require.False(t, retriable(FailureHTTPError, http.StatusNotFound))
	require.False(t, retriable(FailureAborted, 0))
	require.False(t, retriable(FailureUnknown, 0))
}

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	var prev time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		d := backoffDelay(base, 0, attempt)
		require.GreaterOrEqual(t, d, prev, "delay must be non-decreasing")
		prev = d
	}
	require.Equal(t, base, backoffDelay(base, 0, 1))
	require.Equal(t, 4*base, backoffDelay(base, 0, 3))
}
