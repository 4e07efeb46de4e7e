package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fin-analyzer/pkg/blob"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupBlobApp(t *testing.T) (*fiber.App, *blob.LocalStore) {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir(), "http://localhost:8080", time.Minute)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", testUserID.String())
		return c.Next()
	})
	app.Put("/blobs/:ref", NewBlobHandler(store, zap.NewNop()).PutBlob)
	return app, store
}

func issue(t *testing.T, store *blob.LocalStore, fileName string) string {
	t.Helper()
	upload, err := store.IssueUpload(t.Context(), testUserID, fileName)
	require.NoError(t, err)
	return upload.Ref
}

func TestPutBlob(t *testing.T) {
	app, store := setupBlobApp(t)
	ref := issue(t, store, "march.csv")

	resp, err := app.Test(httptest.NewRequest("PUT", "/blobs/"+ref, strings.NewReader("a,b")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	ok, err := store.Exists(t.Context(), ref)
	require.NoError(t, err)
	require.True(t, ok)

	// a reference is write-once
	resp, err = app.Test(httptest.NewRequest("PUT", "/blobs/"+ref, strings.NewReader("c,d")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestPutBlobRejectsUnissuedRef(t *testing.T) {
	app, store := setupBlobApp(t)
	ref := blob.NewRef(testUserID, "march.csv")

	resp, err := app.Test(httptest.NewRequest("PUT", "/blobs/"+ref, strings.NewReader("a,b")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	ok, err := store.Exists(t.Context(), ref)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutBlobRejectsOtherUsersRef(t *testing.T) {
	app, store := setupBlobApp(t)
	upload, err := store.IssueUpload(t.Context(), uuid.New(), "march.csv")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("PUT", "/blobs/"+upload.Ref, strings.NewReader("a,b")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// the owner can still use it
	require.NoError(t, store.Redeem(upload.Ref))
}

func TestPutBlobRejects(t *testing.T) {
	app, store := setupBlobApp(t)

	resp, err := app.Test(httptest.NewRequest("PUT", "/blobs/not-a-ref", strings.NewReader("x")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	ref := issue(t, store, "a.pdf")
	resp, err = app.Test(httptest.NewRequest("PUT", "/blobs/"+ref, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// an empty body does not consume the reservation
	resp, err = app.Test(httptest.NewRequest("PUT", "/blobs/"+ref, strings.NewReader("%PDF")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
