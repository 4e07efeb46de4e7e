package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"fin-analyzer/internal/models"
	"fin-analyzer/pkg/blob"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBlobStore(t *testing.T) *blob.LocalStore {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir(), "http://localhost:8080", time.Minute)
	require.NoError(t, err)
	return store
}

func putBlob(t *testing.T, store blob.Store, owner uuid.UUID, fileName string, body []byte) string {
	t.Helper()
	ref := blob.NewRef(owner, fileName)
	require.NoError(t, store.Put(context.Background(), ref, bytes.NewReader(body)))
	return ref
}

func TestExtractPlainText(t *testing.T) {
	store := newTestBlobStore(t)
	extractor := NewExtractorService(store, zap.NewNop())

	ref := putBlob(t, store, uuid.New(), "january.csv", []byte("date,merchant,amount\n2025-01-05,Metro,2.50\n"))

	text, err := extractor.Extract(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "date,merchant,amount\n2025-01-05,Metro,2.50", text)
}

func TestExtractDropsInvalidUTF8(t *testing.T) {
	store := newTestBlobStore(t)
	extractor := NewExtractorService(store, zap.NewNop())

	ref := putBlob(t, store, uuid.New(), "statement.txt", []byte("Кафе\xff 350\x00"))

	text, err := extractor.Extract(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "Кафе 350", text)
}

func TestExtractFailures(t *testing.T) {
	store := newTestBlobStore(t)
	extractor := NewExtractorService(store, zap.NewNop())

	cases := map[string]struct {
		ref  string
		code models.ErrorCode
	}{
		"missing blob":    {blob.NewRef(uuid.New(), "gone.pdf"), models.ErrorCodeBlobNotFound},
		"invalid ref":     {"../../etc/passwd", models.ErrorCodeBlobNotFound},
		"corrupt pdf":     {putBlob(t, store, uuid.New(), "broken.pdf", []byte("%PDF-1.7\nthis is not a pdf body")), models.ErrorCodeExtractionFailed},
		"pdf by ext only": {putBlob(t, store, uuid.New(), "scan.pdf", []byte("garbage")), models.ErrorCodeExtractionFailed},
		"binary file":     {putBlob(t, store, uuid.New(), "photo.png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}), models.ErrorCodeExtractionFailed},
		"blank text":      {putBlob(t, store, uuid.New(), "empty.txt", []byte(" \n\t")), models.ErrorCodeExtractionFailed},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := extractor.Extract(context.Background(), tc.ref)
			requireCode(t, err, tc.code)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	require.Equal(t, formatPDF, detectFormat("a.bin", []byte("%PDF-1.4 ...")))
	require.Equal(t, formatPDF, detectFormat("a.PDF", []byte("x")))
	require.Equal(t, formatText, detectFormat("a.csv", []byte("a,b")))
	require.Equal(t, formatText, detectFormat("noext", []byte(strings.Repeat("plain words ", 4))))
	require.Equal(t, formatUnknown, detectFormat("a.png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}))
}
