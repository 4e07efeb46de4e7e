// Package blob stores the raw uploaded statements.
package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidRef = errors.New("invalid blob reference")
	// ErrNotIssued is returned for uploads to a reference that was never issued,
	// has expired, or was already written.
	ErrNotIssued = errors.New("upload was not issued")
)

// Upload describes where a client should send the file bytes.
type Upload struct {
	Ref       string
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

type Store interface {
	// IssueUpload reserves a new reference and returns a destination for the bytes.
	IssueUpload(ctx context.Context, owner uuid.UUID, fileName string) (*Upload, error)
	Put(ctx context.Context, ref string, r io.Reader) error
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Exists(ctx context.Context, ref string) (bool, error)
	// Delete is idempotent: deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error
}

const uuidPattern = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

// A reference is "<owner>_<random>[.ext]".
var (
	refPattern = regexp.MustCompile(`^(` + uuidPattern + `)_` + uuidPattern + `(\.[a-z0-9]{1,8})?$`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// NewRef returns a fresh reference scoped to owner that keeps the lower-cased
// extension of fileName.
func NewRef(owner uuid.UUID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return owner.String() + "_" + uuid.NewString() + ext
}

func ValidRef(ref string) bool {
	return refPattern.MatchString(ref)
}

// OwnedBy reports whether ref was issued for owner.
func OwnedBy(ref string, owner uuid.UUID) bool {
	m := refPattern.FindStringSubmatch(ref)
	return m != nil && m[1] == owner.String()
}

func contentType(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}
