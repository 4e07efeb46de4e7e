package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"

	"fin-analyzer/pkg/blob"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type BlobWriter interface {
	Redeem(ref string) error
	Put(ctx context.Context, ref string, r io.Reader) error
}

// BlobHandler receives file bytes for upload URLs issued by the local
// blob backend. GCS uploads go straight to the signed URL instead.
type BlobHandler struct {
	store  BlobWriter
	logger *zap.Logger
}

func NewBlobHandler(store BlobWriter, logger *zap.Logger) *BlobHandler {
	return &BlobHandler{
		store:  store,
		logger: logger,
	}
}

// PutBlob godoc
// @Summary Upload file bytes
// @Description Store the body under a reference returned to the caller by the upload-url endpoint. A reference can be written once, before it expires.
// @Tags blobs
// @Accept application/octet-stream
// @Param ref path string true "Blob reference"
// @Security Bearer
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/v1/blobs/{ref} [put]
func (h *BlobHandler) PutBlob(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	ref := c.Params("ref")
	if !blob.ValidRef(ref) {
		return badRequest(c, "Invalid blob reference")
	}
	if !blob.OwnedBy(ref, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Blob reference was issued to another user",
		})
	}
	if len(c.Body()) == 0 {
		return badRequest(c, "Empty body")
	}

	if err := h.store.Redeem(ref); err != nil {
		if errors.Is(err, blob.ErrNotIssued) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Upload URL is unknown, expired or already used",
			})
		}
		h.logger.Error("Failed to redeem upload", zap.String("blob_ref", ref), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store file",
		})
	}

	if err := h.store.Put(c.Context(), ref, bytes.NewReader(c.Body())); err != nil {
		h.logger.Error("Failed to store blob", zap.String("blob_ref", ref), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store file",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
