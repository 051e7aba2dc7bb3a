// Package client is the Go consumer-side of the recording pipeline API:
// a thin HTTP wrapper, a status watcher with adaptive polling, and a
// retrying upload transport for signed URLs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recording mirrors the server's wire representation; only fields the
// watcher and upload flow need are declared.
type Recording struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Mode            string    `json:"mode"`
	Status          string    `json:"status"`
	ObjectKey       *string   `json:"object_key,omitempty"`
	MimeType        string    `json:"mime_type"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
}

type Transcript struct {
	ID          uuid.UUID `json:"id"`
	RecordingID uuid.UUID `json:"recording_id"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
}

type Debrief struct {
	ID          uuid.UUID `json:"id"`
	RecordingID uuid.UUID `json:"recording_id"`
	Text        string    `json:"text"`
}

type RecordingDetail struct {
	Recording  *Recording  `json:"recording"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Debrief    *Debrief    `json:"debrief,omitempty"`
	// FailedStage is set by the server while the recording is failed and
	// names the job type whose retry endpoint applies.
	FailedStage string `json:"failed_stage,omitempty"`
}

type UploadDestination struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateRecordingResult struct {
	Recording *Recording         `json:"recording"`
	Upload    *UploadDestination `json:"upload"`
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) CreateRecording(ctx context.Context, title, mode, filename, mimeType string) (*CreateRecordingResult, error) {
	var out CreateRecordingResult
	err := c.do(ctx, http.MethodPost, "/api/recordings", map[string]string{
		"title":     title,
		"mode":      mode,
		"filename":  filename,
		"mime_type": mimeType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteUpload(ctx context.Context, id uuid.UUID, sizeBytes int64) (*Recording, error) {
	var out struct {
		Recording *Recording `json:"recording"`
	}
	err := c.do(ctx, http.MethodPost, "/api/recordings/"+id.String()+"/complete-upload",
		map[string]int64{"size_bytes": sizeBytes}, &out)
	if err != nil {
		return nil, err
	}
	return out.Recording, nil
}

func (c *Client) GetRecording(ctx context.Context, id uuid.UUID, includeArtifacts bool) (*RecordingDetail, error) {
	path := "/api/recordings/" + id.String()
	if includeArtifacts {
		path += "?include=artifacts"
	}
	var out RecordingDetail
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetryTranscription(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/recordings/"+id.String()+"/retry-transcription", nil, nil)
}

func (c *Client) RetryDebrief(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/recordings/"+id.String()+"/retry-debrief", nil, nil)
}

func (c *Client) DownloadURL(ctx context.Context, id uuid.UUID) (*UploadDestination, error) {
	var out struct {
		Download *UploadDestination `json:"download"`
	}
	err := c.do(ctx, http.MethodGet, "/api/recordings/"+id.String()+"/download-url", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Download, nil
}
