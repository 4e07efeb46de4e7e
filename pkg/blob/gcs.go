package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket. Clients upload
// directly to the bucket through V4 signed URLs.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	ttl    time.Duration
}

func NewGCSStore(ctx context.Context, bucket string, ttl time.Duration) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), ttl: ttl}, nil
}

func (s *GCSStore) IssueUpload(_ context.Context, owner uuid.UUID, fileName string) (*Upload, error) {
	ref := NewRef(owner, fileName)
	expires := time.Now().UTC().Add(s.ttl)
	ct := contentType(ref)

	url, err := s.bucket.SignedURL(ref, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		Expires:     expires,
		ContentType: ct,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}

	return &Upload{
		Ref:       ref,
		URL:       url,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": ct},
		ExpiresAt: expires,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, ref string, r io.Reader) error {
	if !ValidRef(ref) {
		return ErrInvalidRef
	}
	w := s.bucket.Object(ref).NewWriter(ctx)
	w.ContentType = contentType(ref)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to stream blob to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gcs object: %w", err)
	}
	return nil
}

func (s *GCSStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !ValidRef(ref) {
		return nil, ErrInvalidRef
	}
	rc, err := s.bucket.Object(ref).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gcs object: %w", err)
	}
	return rc, nil
}

func (s *GCSStore) Exists(ctx context.Context, ref string) (bool, error) {
	if !ValidRef(ref) {
		return false, ErrInvalidRef
	}
	_, err := s.bucket.Object(ref).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gcs object: %w", err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	if !ValidRef(ref) {
		return ErrInvalidRef
	}
	err := s.bucket.Object(ref).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gcs object: %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
