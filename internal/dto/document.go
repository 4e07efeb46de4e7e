package dto

type RequestUploadRequest struct {
	FileName string `json:"fileName" validate:"required"`
}

type UploadURLResponse struct {
	BlobRef   string            `json:"blobRef"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expiresAt"`
}

type CreateDocumentRequest struct {
	Title   string `json:"title" validate:"required"`
	BlobRef string `json:"blobRef" validate:"required"`
}

type DocumentResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	BlobRef   string `json:"blobRef"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// DocumentDetailResponse is a document with its analysis, when completed, and
// every recorded failure.
type DocumentDetailResponse struct {
	Document DocumentResponse         `json:"document"`
	Analysis *AnalysisResponse        `json:"analysis,omitempty"`
	Errors   []ExecutionErrorResponse `json:"errors"`
}

type ExecutionErrorResponse struct {
	Step      string `json:"step"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
