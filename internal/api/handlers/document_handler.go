package handlers

import (
	"context"
	"io"
	"strconv"

	"fin-analyzer/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DocumentService interface {
	RequestUpload(ctx context.Context, ownerID uuid.UUID, req *dto.RequestUploadRequest) (*dto.UploadURLResponse, error)
	CommitUpload(ctx context.Context, ownerID uuid.UUID, req *dto.CreateDocumentRequest) (*dto.DocumentResponse, error)
	Upload(ctx context.Context, ownerID uuid.UUID, file io.Reader, fileName, title string) (*dto.DocumentResponse, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) (*dto.DocumentListResponse, error)
	Get(ctx context.Context, ownerID, documentID uuid.UUID) (*dto.DocumentDetailResponse, error)
	Process(ctx context.Context, ownerID, documentID uuid.UUID) (*dto.DocumentResponse, error)
	Delete(ctx context.Context, ownerID, documentID uuid.UUID) error
	Export(ctx context.Context, ownerID, documentID uuid.UUID) ([]byte, string, error)
}

type DocumentHandler struct {
	docService DocumentService
	logger     *zap.Logger
}

func NewDocumentHandler(docService DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		logger:     logger,
	}
}

// RequestUploadURL godoc
// @Summary Request an upload URL
// @Description Reserve a blob reference and get the URL the statement file must be sent to
// @Tags documents
// @Accept json
// @Produce json
// @Param request body dto.RequestUploadRequest true "File to upload"
// @Security Bearer
// @Success 200 {object} dto.UploadURLResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/documents/upload-url [post]
func (h *DocumentHandler) RequestUploadURL(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.RequestUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.docService.RequestUpload(c.Context(), userID, &req)
	if err != nil {
		return writeError(c, h.logger, err, "Failed to issue upload URL")
	}

	return c.JSON(resp)
}

// CreateDocument godoc
// @Summary Register an uploaded statement
// @Description Create a pending document for a file uploaded through an upload URL
// @Tags documents
// @Accept json
// @Produce json
// @Param request body dto.CreateDocumentRequest true "Document"
// @Security Bearer
// @Success 201 {object} dto.DocumentResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/documents [post]
func (h *DocumentHandler) CreateDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	doc, err := h.docService.CommitUpload(c.Context(), userID, &req)
	if err != nil {
		return writeError(c, h.logger, err, "Failed to create document")
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// UploadDocument godoc
// @Summary Upload a statement
// @Description Upload a statement file (PDF, TXT or CSV) and create a pending document
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Statement file"
// @Param title formData string false "Document title, defaults to the file name"
// @Security Bearer
// @Success 201 {object} dto.DocumentResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/documents/upload [post]
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "File is required")
	}

	src, err := file.Open()
	if err != nil {
		return badRequest(c, "Failed to open file")
	}
	defer src.Close()

	doc, err := h.docService.Upload(c.Context(), userID, src, file.Filename, c.FormValue("title"))
	if err != nil {
		return writeError(c, h.logger, err, "Failed to upload document")
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// ListDocuments godoc
// @Summary List user's documents
// @Description Get the caller's documents, newest first
// @Tags documents
// @Produce json
// @Param limit query int false "Limit" default(10)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {object} dto.DocumentListResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	limit := c.QueryInt("limit", 10)
	offset := c.QueryInt("offset", 0)

	docs, err := h.docService.List(c.Context(), userID, limit, offset)
	if err != nil {
		return writeError(c, h.logger, err, "Failed to list documents")
	}

	return c.JSON(docs)
}

// GetDocument godoc
// @Summary Get a document
// @Description Get a document with its analysis and recorded failures
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200 {object} dto.DocumentDetailResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	userID, documentID, ok := h.ids(c)
	if !ok {
		return nil
	}

	doc, err := h.docService.Get(c.Context(), userID, documentID)
	if err != nil {
		return writeError(c, h.logger, err, "Failed to get document")
	}

	return c.JSON(doc)
}

// ProcessDocument godoc
// @Summary Process a document
// @Description Start extraction and analysis of a pending document. Poll the document for the outcome.
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 202 {object} dto.DocumentResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/documents/{id}/process [post]
func (h *DocumentHandler) ProcessDocument(c *fiber.Ctx) error {
	userID, documentID, ok := h.ids(c)
	if !ok {
		return nil
	}

	doc, err := h.docService.Process(c.Context(), userID, documentID)
	if err != nil {
		return writeError(c, h.logger, err, "Failed to process document")
	}

	return c.Status(fiber.StatusAccepted).JSON(doc)
}

// DeleteDocument godoc
// @Summary Delete a document
// @Description Delete a document that is not being processed, with its analysis and file
// @Tags documents
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/documents/{id} [delete]
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID, documentID, ok := h.ids(c)
	if !ok {
		return nil
	}

	if err := h.docService.Delete(c.Context(), userID, documentID); err != nil {
		return writeError(c, h.logger, err, "Failed to delete document")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExportDocument godoc
// @Summary Export an analysis
// @Description Download a completed analysis as an XLSX workbook
// @Tags documents
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200 {file} file
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/documents/{id}/export [get]
func (h *DocumentHandler) ExportDocument(c *fiber.Ctx) error {
	userID, documentID, ok := h.ids(c)
	if !ok {
		return nil
	}

	data, fileName, err := h.docService.Export(c.Context(), userID, documentID)
	if err != nil {
		return writeError(c, h.logger, err, "Failed to export document")
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+strconv.Quote(fileName))
	return c.Send(data)
}

// ids reads the caller and the :id param. When ok is false the error
// response has already been written.
func (h *DocumentHandler) ids(c *fiber.Ctx) (userID, documentID uuid.UUID, ok bool) {
	userID, err := getUserID(c)
	if err != nil {
		_ = unauthorized(c)
		return uuid.Nil, uuid.Nil, false
	}

	documentID, err = uuid.Parse(c.Params("id"))
	if err != nil {
		_ = badRequest(c, "Invalid document ID")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, documentID, true
}
