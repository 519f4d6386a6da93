package models

import "time"

// SystemHealth is the aggregate health report over persisted pipeline state.
type SystemHealth struct {
	TotalDocuments      int       `json:"total_documents"`
	PendingDocuments    int       `json:"pending_documents"`
	ProcessingDocuments int       `json:"processing_documents"`
	CompletedDocuments  int       `json:"completed_documents"`
	FailedDocuments     int       `json:"failed_documents"`
	StalledDocuments    int       `json:"stalled_documents"`
	EmbeddingGaps       int       `json:"embedding_gaps"`
	DimensionUniform    bool      `json:"dimension_uniform"`
	Healthy             bool      `json:"healthy"`
	CheckedAt           time.Time `json:"checked_at"`
}

// StalledDocument flags a document stuck in processing past its expected window.
type StalledDocument struct {
	DocumentID   string    `json:"document_id"`
	StartedAt    time.Time `json:"started_at"`
	MinutesStuck int       `json:"minutes_stuck"`
	Progress     int       `json:"progress"`
	Attempts     int       `json:"attempts"`
	Severity     string    `json:"severity"` // MEDIUM, HIGH, CRITICAL
}

// Stall severity levels, escalating with elapsed time.
const (
	StallMedium   = "MEDIUM"
	StallHigh     = "HIGH"
	StallCritical = "CRITICAL"
)

// EmbeddingGap flags a completed document with chunks missing embeddings.
type EmbeddingGap struct {
	DocumentID        string  `json:"document_id"`
	TotalChunks       int     `json:"total_chunks"`
	MissingEmbeddings int     `json:"missing_embeddings"`
	GapPercentage     float64 `json:"gap_percentage"`
}

// DimensionDiagnostic reports embedding-dimension uniformity across the store.
type DimensionDiagnostic struct {
	TotalVectors   int       `json:"total_vectors"`
	ModalDimension int       `json:"modal_dimension"`
	MinDimension   int       `json:"min_dimension"`
	MaxDimension   int       `json:"max_dimension"`
	Uniform        bool      `json:"uniform"`
	InvalidChunks  []string  `json:"invalid_chunks,omitempty"` // chunk IDs off the modal dimension
	CheckedAt      time.Time `json:"checked_at"`
}
