package service

import (
	"errors"
	"fmt"

	"fin-analyzer/internal/models"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrNotAuthorized     = errors.New("document belongs to another user")
	ErrValidation        = errors.New("validation failed")
	ErrAlreadyProcessing = errors.New("document is already being processed")
	ErrDocumentBusy      = errors.New("document is being processed")
	ErrNotCompleted      = errors.New("document analysis is not completed")
)

// PipelineError carries a taxonomy code for failures that are recorded
// against a document or reported to the caller.
type PipelineError struct {
	Code    models.ErrorCode
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Detail is the human readable part stored on execution errors.
func (e *PipelineError) Detail() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func newPipelineError(code models.ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Cause: cause}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// CodeOf maps any service error onto the error taxonomy.
func CodeOf(err error) models.ErrorCode {
	var perr *PipelineError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perr):
		return perr.Code
	case errors.Is(err, ErrNotFound):
		return models.ErrorCodeNotFound
	case errors.Is(err, ErrNotAuthorized):
		return models.ErrorCodeNotAuthorized
	case errors.Is(err, ErrValidation):
		return models.ErrorCodeValidationFailed
	case errors.Is(err, ErrAlreadyProcessing), errors.Is(err, ErrDocumentBusy):
		return models.ErrorCodeAlreadyProcessing
	case errors.Is(err, ErrNotCompleted):
		return models.ErrorCodeNotCompleted
	}
	return models.ErrorCodeInternal
}
