package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusExtracting DocumentStatus = "extracting"
	DocumentStatusAnalyzing  DocumentStatus = "analyzing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// transitions lists the statuses each status may move to.
var transitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusPending:    {DocumentStatusExtracting},
	DocumentStatusExtracting: {DocumentStatusAnalyzing, DocumentStatusFailed},
	DocumentStatusAnalyzing:  {DocumentStatusCompleted, DocumentStatusFailed},
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusExtracting, DocumentStatusAnalyzing,
		DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// InFlight reports whether a pipeline run currently owns the document.
func (s DocumentStatus) InFlight() bool {
	return s == DocumentStatusExtracting || s == DocumentStatusAnalyzing
}

func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Document struct {
	ID        uuid.UUID      `db:"id"`
	OwnerID   uuid.UUID      `db:"owner_id"`
	Title     string         `db:"title"`
	BlobRef   string         `db:"blob_ref"`
	Status    DocumentStatus `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}
