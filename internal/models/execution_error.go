package models

import (
	"time"

	"github.com/google/uuid"
)

type Step string

const (
	StepExtraction Step = "extraction"
	StepAnalysis   Step = "analysis"
)

type ErrorCode string

const (
	ErrorCodeBlobNotFound       ErrorCode = "BLOB_NOT_FOUND"
	ErrorCodeExtractionFailed   ErrorCode = "EXTRACTION_FAILED"
	ErrorCodeModelEmptyResponse ErrorCode = "MODEL_EMPTY_RESPONSE"
	ErrorCodeModelMalformedJSON ErrorCode = "MODEL_MALFORMED_JSON"
	ErrorCodeModelCallFailed    ErrorCode = "MODEL_CALL_FAILED"
	ErrorCodePersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"
	ErrorCodeNotAuthorized      ErrorCode = "NOT_AUTHORIZED"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrorCodeAlreadyProcessing  ErrorCode = "ALREADY_PROCESSING"
	ErrorCodeNotCompleted       ErrorCode = "NOT_COMPLETED"
	ErrorCodeInternal           ErrorCode = "INTERNAL"
)

// ExecutionError is an append-only record of one failed pipeline stage.
type ExecutionError struct {
	ID         uuid.UUID `db:"id"`
	DocumentID uuid.UUID `db:"document_id"`
	Step       Step      `db:"step"`
	Code       ErrorCode `db:"code"`
	Message    string    `db:"message"`
	Timestamp  time.Time `db:"created_at"`
}
