package blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080", 15*time.Minute)
	require.NoError(t, err)

	upload, err := store.IssueUpload(ctx, uuid.New(), "Statement-JAN.PDF")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(upload.Ref, ".pdf"))
	require.Equal(t, "PUT", upload.Method)
	require.Equal(t, "http://localhost:8080/api/v1/blobs/"+upload.Ref, upload.URL)
	require.Equal(t, "application/pdf", upload.Headers["Content-Type"])
	require.True(t, upload.ExpiresAt.After(time.Now()))

	exists, err := store.Exists(ctx, upload.Ref)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Put(ctx, upload.Ref, strings.NewReader("date,amount\n")))

	exists, err = store.Exists(ctx, upload.Ref)
	require.NoError(t, err)
	require.True(t, exists)

	rc, err := store.Open(ctx, upload.Ref)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "date,amount\n", string(body))

	require.NoError(t, store.Delete(ctx, upload.Ref))
	require.NoError(t, store.Delete(ctx, upload.Ref))

	_, err = store.Open(ctx, upload.Ref)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "", time.Minute)
	require.NoError(t, err)

	for _, ref := range []string{"../etc/passwd", "a/b.pdf", "", "not-a-uuid.pdf", uuid.NewString() + ".pdf"} {
		_, err := store.Open(ctx, ref)
		require.ErrorIs(t, err, ErrInvalidRef, ref)
		require.ErrorIs(t, store.Put(ctx, ref, strings.NewReader("x")), ErrInvalidRef, ref)
	}
}

func TestNewRef(t *testing.T) {
	owner := uuid.New()

	require.True(t, ValidRef(NewRef(owner, "report.csv")))
	require.True(t, strings.HasSuffix(NewRef(owner, "report.CSV"), ".csv"))
	require.False(t, strings.Contains(NewRef(owner, "weird.ext with space"), " "))
	require.True(t, ValidRef(NewRef(owner, "weird.ext with space")))
	require.True(t, ValidRef(NewRef(owner, "no-extension")))
}

func TestOwnedBy(t *testing.T) {
	owner := uuid.New()
	ref := NewRef(owner, "march.pdf")

	require.True(t, OwnedBy(ref, owner))
	require.False(t, OwnedBy(ref, uuid.New()))
	require.False(t, OwnedBy("../"+ref, owner))
}

func TestLocalStoreRedeem(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "", time.Minute)
	require.NoError(t, err)
	owner := uuid.New()

	upload, err := store.IssueUpload(ctx, owner, "march.pdf")
	require.NoError(t, err)

	require.NoError(t, store.Redeem(upload.Ref))
	require.ErrorIs(t, store.Redeem(upload.Ref), ErrNotIssued)
	require.ErrorIs(t, store.Redeem(NewRef(owner, "never-issued.pdf")), ErrNotIssued)
}

func TestLocalStoreRedeemExpired(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "", time.Minute)
	require.NoError(t, err)
	now := time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	upload, err := store.IssueUpload(ctx, uuid.New(), "march.pdf")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	require.ErrorIs(t, store.Redeem(upload.Ref), ErrNotIssued)
}
