package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalStore keeps blobs as files in one directory. Uploads go through the
// service's own PUT /api/v1/blobs/:ref endpoint, which only accepts
// references issued by IssueUpload.
type LocalStore struct {
	dir     string
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	issued map[string]time.Time // ref -> expiry
}

func NewLocalStore(dir, baseURL string, ttl time.Duration) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
		issued:  make(map[string]time.Time),
	}, nil
}

func (s *LocalStore) IssueUpload(_ context.Context, owner uuid.UUID, fileName string) (*Upload, error) {
	ref := NewRef(owner, fileName)
	now := s.now().UTC()
	expires := now.Add(s.ttl)

	s.mu.Lock()
	for r, exp := range s.issued {
		if now.After(exp) {
			delete(s.issued, r)
		}
	}
	s.issued[ref] = expires
	s.mu.Unlock()

	return &Upload{
		Ref:       ref,
		URL:       s.baseURL + "/api/v1/blobs/" + ref,
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType(ref)},
		ExpiresAt: expires,
	}, nil
}

// Redeem consumes the reservation made by IssueUpload. A reference can be
// redeemed once, before it expires.
func (s *LocalStore) Redeem(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.issued[ref]
	if !ok {
		return ErrNotIssued
	}
	delete(s.issued, ref)
	if s.now().UTC().After(exp) {
		return ErrNotIssued
	}
	return nil
}

func (s *LocalStore) Put(_ context.Context, ref string, r io.Reader) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Exists(_ context.Context, ref string) (bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *LocalStore) path(ref string) (string, error) {
	if !ValidRef(ref) {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.dir, ref), nil
}
