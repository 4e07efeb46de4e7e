package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"fin-analyzer/internal/models"
	"fin-analyzer/pkg/blob"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// maxBlobBytes caps how much of a blob is read into memory.
const maxBlobBytes = 32 << 20

type ExtractorService struct {
	blobs   blob.Store
	pdfConf *model.Configuration
	logger  *zap.Logger
}

func NewExtractorService(blobs blob.Store, logger *zap.Logger) *ExtractorService {
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &ExtractorService{
		blobs:   blobs,
		pdfConf: conf,
		logger:  logger,
	}
}

// Extract returns the plain text of a stored statement. Errors are
// *PipelineError values coded BLOB_NOT_FOUND or EXTRACTION_FAILED.
func (s *ExtractorService) Extract(ctx context.Context, blobRef string) (string, error) {
	rc, err := s.blobs.Open(ctx, blobRef)
	if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidRef) {
		return "", newPipelineError(models.ErrorCodeBlobNotFound, "statement file not found", err)
	}
	if err != nil {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "failed to open statement file", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBlobBytes+1))
	if err != nil {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "failed to read statement file", err)
	}
	if len(data) > maxBlobBytes {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "statement file is too large", nil)
	}

	var text string
	switch detectFormat(blobRef, data) {
	case formatPDF:
		text, err = s.extractPDF(ctx, data)
	case formatText:
		text = string(data)
	default:
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "unsupported file format", nil)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(sanitizeUTF8(text))
	if text == "" {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "no text found in statement", nil)
	}

	s.logger.Debug("Extracted statement text",
		zap.String("blob_ref", blobRef),
		zap.Int("bytes", len(data)),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

func (s *ExtractorService) extractPDF(ctx context.Context, data []byte) (string, error) {
	if err := api.Validate(bytes.NewReader(data), s.pdfConf); err != nil {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "statement is not a readable PDF", err)
	}

	text, err := readPDFRows(ctx, data)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "extraction interrupted", ctxErr)
	}
	if err != nil {
		s.logger.Debug("Row extraction failed, falling back to MuPDF", zap.Error(err))
	}

	text, err = readPDFMuPDF(ctx, data)
	if err != nil {
		return "", newPipelineError(models.ErrorCodeExtractionFailed, "failed to read PDF text", err)
	}
	return text, nil
}

// readPDFRows rebuilds the text line by line from positioned glyphs, which
// keeps statement table rows together.
func readPDFRows(ctx context.Context, data []byte) (text string, err error) {
	// the pdf reader panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	return strings.Join(pages, "\n\n"), nil
}

// readPDFMuPDF handles documents whose fonts or encodings the row reader
// cannot decode.
func readPDFMuPDF(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageText, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(pageText))
	}
	return b.String(), nil
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatPDF
	formatText
)

func detectFormat(ref string, data []byte) fileFormat {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return formatPDF
	}
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".pdf":
		return formatPDF
	case ".txt", ".csv":
		return formatText
	}
	if strings.HasPrefix(http.DetectContentType(data), "text/") {
		return formatText
	}
	return formatUnknown
}
