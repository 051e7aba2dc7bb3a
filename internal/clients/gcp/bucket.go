package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

// SignedDestination is a pre-authorized URL for a direct client transfer.
type SignedDestination struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BucketService is the object-store contract the pipeline consumes. Clients
// move bytes directly against signed URLs; the server only issues them and
// verifies object presence.
type BucketService interface {
	IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (*SignedDestination, error)
	IssueDownloadURL(ctx context.Context, key string, ttl time.Duration) (*SignedDestination, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
	// ObjectURI returns the gs:// locator workers hand to the speech provider.
	ObjectURI(key string) string
	Close() error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucketName    string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucketName := os.Getenv("RECORDING_GCS_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var RECORDING_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucketName:    bucketName,
	}, nil
}

func (bs *bucketService) IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (*SignedDestination, error) {
	if key == "" {
		return nil, fmt.Errorf("object key required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expires := time.Now().Add(ttl)
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodPut,
		Expires: expires,
	}
	if contentType != "" {
		opts.ContentType = contentType
	}
	url, err := bs.storageClient.Bucket(bs.bucketName).SignedURL(key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload url for %q: %w", key, err)
	}
	return &SignedDestination{URL: url, ObjectKey: key, ExpiresAt: expires}, nil
}

func (bs *bucketService) IssueDownloadURL(ctx context.Context, key string, ttl time.Duration) (*SignedDestination, error) {
	if key == "" {
		return nil, fmt.Errorf("object key required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	expires := time.Now().Add(ttl)
	url, err := bs.storageClient.Bucket(bs.bucketName).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign download url for %q: %w", key, err)
	}
	return &SignedDestination{URL: url, ObjectKey: key, ExpiresAt: expires}, nil
}

func (bs *bucketService) ObjectExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := bs.storageClient.Bucket(bs.bucketName).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat GCS object %q: %w", key, err)
	}
	return true, nil
}

func (bs *bucketService) ObjectURI(key string) string {
	return fmt.Sprintf("gs://%s/%s", bs.bucketName, key)
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}
