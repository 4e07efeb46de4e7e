package models

import (
	"time"

	"github.com/google/uuid"
)

type StructuredData struct {
	TotalAmount float64       `json:"totalAmount"`
	Category    Category      `json:"category"`
	Items       []Transaction `json:"items"`
	Advice      string        `json:"advice"`
}

type AnalysisMetadata struct {
	ModelID     string    `db:"model_id"`
	TokenUsage  int       `db:"token_usage"`
	ProcessedAt time.Time `db:"processed_at"`
}

// AnalysisResult is written once, when its document completes, and never updated.
type AnalysisResult struct {
	ID             uuid.UUID      `db:"id"`
	DocumentID     uuid.UUID      `db:"document_id"`
	Summary        string         `db:"summary"`
	StructuredData StructuredData `db:"structured_data"`
	Metadata       AnalysisMetadata
}
